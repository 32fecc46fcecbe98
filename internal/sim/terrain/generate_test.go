package terrain

import (
	"testing"

	"surveyor.ai/internal/sim/world"
)

func defaultParams() Params {
	return Params{
		Width:         72,
		Height:        24,
		TerrainSeed:   1337,
		ResourceSeed:  4242,
		ResourceCount: 20,
		StationSize:   3,
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate(defaultParams())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := Generate(defaultParams())
	if err != nil {
		t.Fatalf("generate again: %v", err)
	}
	if a.Station != b.Station {
		t.Fatalf("station differs across runs: %+v vs %+v", a.Station, b.Station)
	}
	for i := range a.Tiles {
		if a.Tiles[i] != b.Tiles[i] {
			t.Fatalf("tile %d differs across identical runs", i)
		}
	}

	p := defaultParams()
	p.TerrainSeed++
	c, err := Generate(p)
	if err != nil {
		t.Fatalf("generate reseeded: %v", err)
	}
	same := true
	for i := range a.Tiles {
		if a.Tiles[i].Terrain != c.Tiles[i].Terrain {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different terrain seed produced identical terrain")
	}
}

func TestStationPadOpenAndCentered(t *testing.T) {
	l, err := Generate(defaultParams())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	st := l.Station
	if st.MaxRow-st.MinRow+1 != 3 || st.MaxCol-st.MinCol+1 != 3 {
		t.Fatalf("station should be 3x3, got %+v", st)
	}
	center := st.Center()
	if center.Row != l.Height/2 || center.Col != l.Width/2 {
		t.Fatalf("station not centered: center %+v on %dx%d", center, l.Width, l.Height)
	}
	for row := st.MinRow; row <= st.MaxRow; row++ {
		for col := st.MinCol; col <= st.MaxCol; col++ {
			tile := l.Tiles[row*l.Width+col]
			if tile.Terrain != world.TerrainPlain {
				t.Fatalf("station tile (%d,%d) is %v, want plain", row, col, tile.Terrain)
			}
			if tile.Resource.Kind != world.KindNone {
				t.Fatalf("station tile (%d,%d) carries a deposit", row, col)
			}
		}
	}
}

func TestEveryWalkableTileReachesStation(t *testing.T) {
	for _, seed := range []int64{1, 7, 1337, 90210} {
		p := defaultParams()
		p.TerrainSeed = seed
		l, err := Generate(p)
		if err != nil {
			t.Fatalf("seed %d: generate: %v", seed, err)
		}

		seen := make([]bool, len(l.Tiles))
		start := l.Station.Center()
		queue := []world.Coord{start}
		seen[start.Row*l.Width+start.Col] = true
		reached := 0
		for len(queue) > 0 {
			c := queue[0]
			queue = queue[1:]
			reached++
			for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				n := c.Add(d[0], d[1])
				if n.Row < 0 || n.Row >= l.Height || n.Col < 0 || n.Col >= l.Width {
					continue
				}
				idx := n.Row*l.Width + n.Col
				if seen[idx] || !l.Tiles[idx].Terrain.Walkable() {
					continue
				}
				seen[idx] = true
				queue = append(queue, n)
			}
		}

		walkable := 0
		for _, tile := range l.Tiles {
			if tile.Terrain.Walkable() {
				walkable++
			}
		}
		if reached != walkable {
			t.Fatalf("seed %d: %d of %d walkable tiles reachable from station", seed, reached, walkable)
		}
		if walkable == len(l.Tiles) {
			t.Fatalf("seed %d: no ridges generated at all", seed)
		}
	}
}

func TestDepositsLandOnOpenGround(t *testing.T) {
	l, err := Generate(defaultParams())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	count := 0
	for i, tile := range l.Tiles {
		if tile.Resource.Kind == world.KindNone {
			continue
		}
		count++
		c := world.Coord{Row: i / l.Width, Col: i % l.Width}
		if !tile.Terrain.Walkable() {
			t.Fatalf("deposit at %+v sits on a ridge", c)
		}
		if l.Station.Contains(c) {
			t.Fatalf("deposit at %+v sits on the station pad", c)
		}
		if tile.Resource.Quantity < minDepositQty || tile.Resource.Quantity > maxDepositQty {
			t.Fatalf("deposit at %+v has quantity %d outside [%d, %d]", c, tile.Resource.Quantity, minDepositQty, maxDepositQty)
		}
		switch tile.Resource.Kind {
		case world.KindEnergy, world.KindMineral, world.KindScienceSite:
		default:
			t.Fatalf("deposit at %+v has kind %v", c, tile.Resource.Kind)
		}
	}
	if count != 20 {
		t.Fatalf("placed %d deposits, want 20", count)
	}
}

func TestGenerateRejectsBadParams(t *testing.T) {
	p := defaultParams()
	p.Width = 4
	if _, err := Generate(p); err == nil {
		t.Fatalf("tiny map must be rejected")
	}
	p = defaultParams()
	p.StationSize = 30
	if _, err := Generate(p); err == nil {
		t.Fatalf("oversized station must be rejected")
	}
	p = defaultParams()
	p.ResourceCount = -1
	if _, err := Generate(p); err == nil {
		t.Fatalf("negative resource count must be rejected")
	}
}
