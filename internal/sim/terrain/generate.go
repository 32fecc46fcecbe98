// Package terrain generates the initial planetary surface: hashed noise lays
// down ridges and dunes, corridors are carved so every open area can reach
// the station, and resource deposits are scattered on walkable ground. The
// same parameters always produce the same layout.
package terrain

import (
	"fmt"
	"math/rand"

	"surveyor.ai/internal/sim/world"
)

type Params struct {
	Width         int
	Height        int
	TerrainSeed   int64
	ResourceSeed  int64
	ResourceCount int
	StationSize   int
}

// Layout is the generator output, ready to hand to world.New.
type Layout struct {
	Width   int
	Height  int
	Tiles   []world.Tile
	Station world.Rect
}

const (
	minDepositQty = 10
	maxDepositQty = 100
)

func Generate(p Params) (Layout, error) {
	if p.Width < 8 || p.Height < 8 {
		return Layout{}, fmt.Errorf("terrain: map must be at least 8x8, got %dx%d", p.Width, p.Height)
	}
	if p.StationSize < 1 || p.StationSize > p.Width || p.StationSize > p.Height {
		return Layout{}, fmt.Errorf("terrain: station size %d does not fit %dx%d", p.StationSize, p.Width, p.Height)
	}
	if p.ResourceCount < 0 {
		return Layout{}, fmt.Errorf("terrain: negative resource count")
	}

	station := centeredStation(p.Width, p.Height, p.StationSize)
	tiles := make([]world.Tile, p.Width*p.Height)

	for row := 0; row < p.Height; row++ {
		for col := 0; col < p.Width; col++ {
			tiles[row*p.Width+col] = world.Tile{Terrain: classAt(p.TerrainSeed, row, col)}
		}
	}

	// The station pad is always open ground.
	for row := station.MinRow; row <= station.MaxRow; row++ {
		for col := station.MinCol; col <= station.MaxCol; col++ {
			tiles[row*p.Width+col].Terrain = world.TerrainPlain
		}
	}

	carveCorridors(tiles, p.Width, p.Height, station.Center())
	placeDeposits(tiles, p, station)

	return Layout{Width: p.Width, Height: p.Height, Tiles: tiles, Station: station}, nil
}

func centeredStation(width, height, size int) world.Rect {
	minRow := height/2 - size/2
	minCol := width/2 - size/2
	return world.Rect{
		MinRow: minRow,
		MinCol: minCol,
		MaxRow: minRow + size - 1,
		MaxCol: minCol + size - 1,
	}
}

// classAt picks terrain for one tile. Ridge blobs come first so they are
// never diluted by dune texture.
func classAt(seed int64, row, col int) world.Terrain {
	switch {
	case inCluster(seed+11, row, col, 12, 3, 500):
		return world.TerrainRidge
	case inCluster(seed+12, row, col, 7, 2, 450):
		return world.TerrainRidge
	case inCluster(seed+21, row, col, 9, 3, 550):
		return world.TerrainDune
	}
	// Sprinkle lone dunes so open ground is not uniformly flat.
	if hash2(seed+99, row, col)%1000 < 50 {
		return world.TerrainDune
	}
	return world.TerrainPlain
}

// carveCorridors guarantees every walkable tile can reach the station. Ridges
// split the noise field into islands; each island gets an L-shaped corridor
// blasted from its first tile to the station center. Carving only removes
// ridges, so one pass suffices.
func carveCorridors(tiles []world.Tile, width, height int, center world.Coord) {
	region := make([]int, len(tiles))
	for i := range region {
		region[i] = -1
	}
	next := 0
	reps := []world.Coord{}
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			idx := row*width + col
			if region[idx] != -1 || !tiles[idx].Terrain.Walkable() {
				continue
			}
			floodFill(tiles, region, width, height, world.Coord{Row: row, Col: col}, next)
			reps = append(reps, world.Coord{Row: row, Col: col})
			next++
		}
	}

	home := region[center.Row*width+center.Col]
	for id, rep := range reps {
		if id == home {
			continue
		}
		// Rows first, then columns.
		for row := rep.Row; row != center.Row; row += sign(center.Row - row) {
			tiles[row*width+rep.Col].Terrain = world.TerrainPlain
		}
		for col := rep.Col; col != center.Col; col += sign(center.Col - col) {
			tiles[center.Row*width+col].Terrain = world.TerrainPlain
		}
	}
}

func floodFill(tiles []world.Tile, region []int, width, height int, start world.Coord, id int) {
	queue := []world.Coord{start}
	region[start.Row*width+start.Col] = id
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			n := c.Add(d[0], d[1])
			if n.Row < 0 || n.Row >= height || n.Col < 0 || n.Col >= width {
				continue
			}
			idx := n.Row*width + n.Col
			if region[idx] != -1 || !tiles[idx].Terrain.Walkable() {
				continue
			}
			region[idx] = id
			queue = append(queue, n)
		}
	}
}

func sign(v int) int {
	if v < 0 {
		return -1
	}
	return 1
}

// placeDeposits scatters resource deposits on walkable ground outside the
// station. Draws come from a dedicated seed so tweaking terrain noise does
// not reshuffle resources.
func placeDeposits(tiles []world.Tile, p Params, station world.Rect) {
	rng := rand.New(rand.NewSource(p.ResourceSeed))
	kinds := [3]world.ResourceKind{world.KindEnergy, world.KindMineral, world.KindScienceSite}

	placed := 0
	for attempts := 0; placed < p.ResourceCount && attempts < p.ResourceCount*50; attempts++ {
		row := rng.Intn(p.Height)
		col := rng.Intn(p.Width)
		c := world.Coord{Row: row, Col: col}
		idx := row*p.Width + col
		if !tiles[idx].Terrain.Walkable() || station.Contains(c) || tiles[idx].Resource.Kind != world.KindNone {
			continue
		}
		tiles[idx].Resource = world.Resource{
			Kind:     kinds[rng.Intn(len(kinds))],
			Quantity: minDepositQty + rng.Intn(maxDepositQty-minDepositQty+1),
		}
		placed++
	}
}
