package terrain

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash2(seed int64, row, col int) uint64 {
	ur := uint64(uint32(int32(row)))
	uc := uint64(uint32(int32(col)))
	v := uint64(seed) ^ (ur * 0x9e3779b97f4a7c15) ^ (uc * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// inCluster reports whether (row, col) falls inside a deterministic blob.
// The plane is cut into grid-sized cells; each cell rolls probPermille for a
// blob and, on success, hosts one disc of the given radius at a hashed
// offset. Neighbor cells are checked so discs may straddle cell borders.
func inCluster(seed int64, row, col, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gr := floorDiv(row, grid)
	gc := floorDiv(col, grid)
	r2 := radius * radius

	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			cgr := gr + dr
			cgc := gc + dc
			h := hash2(seed, cgr, cgc)
			if h%1000 >= probPermille {
				continue
			}

			or := int((h >> 10) % uint64(grid))
			oc := int((h >> 20) % uint64(grid))
			cr := cgr*grid + or
			cc := cgc*grid + oc

			ddr := row - cr
			ddc := col - cc
			if ddr*ddr+ddc*ddc <= r2 {
				return true
			}
		}
	}
	return false
}
