package knowledge

import (
	"testing"

	"surveyor.ai/internal/sim/world"
)

func plainSighting(row, col int) world.TileSnapshot {
	return world.TileSnapshot{
		Coord:   world.Coord{Row: row, Col: col},
		Terrain: world.TerrainPlain,
	}
}

func TestObserveMintsVersionsOnlyOnChange(t *testing.T) {
	c := NewCache(3)
	e1, changed := c.Observe(plainSighting(1, 1))
	if !changed || e1.Version != 1 || e1.Origin != 3 {
		t.Fatalf("first sighting: %+v changed=%v", e1, changed)
	}
	e2, changed := c.Observe(plainSighting(1, 1))
	if changed || e2.Version != 1 {
		t.Fatalf("identical sighting must not mint a version: %+v changed=%v", e2, changed)
	}

	s := plainSighting(1, 1)
	s.Resource = world.Resource{Kind: world.KindEnergy, Quantity: 7}
	e3, changed := c.Observe(s)
	if !changed || e3.Version != 2 {
		t.Fatalf("changed sighting must mint next version: %+v changed=%v", e3, changed)
	}
	if c.Clock() != 2 {
		t.Fatalf("clock should be 2, got %d", c.Clock())
	}
}

func TestObservePreservesAnalysisMark(t *testing.T) {
	c := NewCache(5)
	c.Observe(plainSighting(2, 2))
	if _, ok := c.MarkAnalyzed(world.Coord{Row: 2, Col: 2}); !ok {
		t.Fatalf("mark analyzed on known tile failed")
	}
	c.Observe(plainSighting(2, 2))
	e, _ := c.Get(world.Coord{Row: 2, Col: 2})
	if !e.Facts.Analyzed {
		t.Fatalf("re-observation cleared the analysis mark")
	}
	if _, ok := c.MarkAnalyzed(world.Coord{Row: 9, Col: 9}); ok {
		t.Fatalf("marking an unknown tile must be refused")
	}
}

func TestFoldVersionRules(t *testing.T) {
	c := NewCache(1)
	at := world.Coord{Row: 4, Col: 4}
	ridge := Facts{Terrain: world.TerrainRidge}
	dune := Facts{Terrain: world.TerrainDune}
	plain := Facts{Terrain: world.TerrainPlain}

	if n := c.Fold([]Entry{{Coord: at, Facts: ridge, Origin: 2, Version: 5}}); n != 1 {
		t.Fatalf("fresh entry should apply, got %d", n)
	}
	if n := c.Fold([]Entry{{Coord: at, Facts: dune, Origin: 2, Version: 5}}); n != 0 {
		t.Fatalf("same origin, same version must be ignored, got %d", n)
	}
	if n := c.Fold([]Entry{{Coord: at, Facts: dune, Origin: 2, Version: 4}}); n != 0 {
		t.Fatalf("same origin, older version must be ignored, got %d", n)
	}
	if n := c.Fold([]Entry{{Coord: at, Facts: plain, Origin: 7, Version: 1}}); n != 1 {
		t.Fatalf("cross-origin entry follows last-applied-wins, got %d", n)
	}
	e, _ := c.Get(at)
	if e.Origin != 7 || e.Facts != plain {
		t.Fatalf("stored entry should be the cross-origin one: %+v", e)
	}
	if c.DirtyLen() != 0 {
		t.Fatalf("folded entries must not be marked for re-sharing")
	}
}

func TestDirtyBatchDrainsRowMajor(t *testing.T) {
	c := NewCache(2)
	for _, rc := range [][2]int{{3, 1}, {0, 5}, {3, 0}, {1, 2}} {
		c.Observe(plainSighting(rc[0], rc[1]))
	}
	batch := c.DirtyBatch(3)
	if len(batch) != 3 {
		t.Fatalf("batch size %d, want 3", len(batch))
	}
	want := []world.Coord{{Row: 0, Col: 5}, {Row: 1, Col: 2}, {Row: 3, Col: 0}}
	for i, e := range batch {
		if e.Coord != want[i] {
			t.Fatalf("batch[%d] = %+v, want %+v", i, e.Coord, want[i])
		}
	}
	rest := c.DirtyBatch(10)
	if len(rest) != 1 || rest[0].Coord != (world.Coord{Row: 3, Col: 1}) {
		t.Fatalf("second drain: %+v", rest)
	}
	if c.DirtyBatch(10) != nil {
		t.Fatalf("drained cache should yield nil")
	}
}

func TestNearestRowMajorTieBreak(t *testing.T) {
	c := NewCache(1)
	// Two energy deposits equidistant from (2,2).
	for _, rc := range [][2]int{{0, 2}, {4, 2}} {
		s := plainSighting(rc[0], rc[1])
		s.Resource = world.Resource{Kind: world.KindEnergy, Quantity: 5}
		c.Observe(s)
	}
	hasEnergy := func(e Entry) bool { return e.Facts.Resource.Kind == world.KindEnergy }
	for i := 0; i < 20; i++ {
		got, ok := c.Nearest(world.Coord{Row: 2, Col: 2}, hasEnergy)
		if !ok || got != (world.Coord{Row: 0, Col: 2}) {
			t.Fatalf("tie must break row-major, got %+v ok=%v", got, ok)
		}
	}
	if _, ok := c.Nearest(world.Coord{Row: 0, Col: 0}, func(Entry) bool { return false }); ok {
		t.Fatalf("nearest with rejecting predicate must report not found")
	}
}

func TestKnownObstacle(t *testing.T) {
	c := NewCache(1)
	s := plainSighting(6, 6)
	s.Terrain = world.TerrainRidge
	c.Observe(s)
	if !c.KnownObstacle(world.Coord{Row: 6, Col: 6}) {
		t.Fatalf("seen ridge should be a known obstacle")
	}
	if c.KnownObstacle(world.Coord{Row: 0, Col: 0}) {
		t.Fatalf("unseen tile must not count as an obstacle")
	}
}
