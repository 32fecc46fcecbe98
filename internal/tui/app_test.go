package tui

import (
	"io"
	"log"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"surveyor.ai/internal/sim/robot"
	"surveyor.ai/internal/sim/station"
	"surveyor.ai/internal/sim/tuning"
	"surveyor.ai/internal/sim/world"
)

func testApp(t *testing.T) *App {
	t.Helper()
	w, h := 10, 6
	tiles := make([]world.Tile, w*h)
	tiles[3*w+7].Terrain = world.TerrainRidge
	tiles[2*w+5].Resource = world.Resource{Kind: world.KindMineral, Quantity: 25}
	grid, err := world.New(w, h, tiles, world.Rect{MinRow: 1, MinCol: 1, MaxRow: 2, MaxCol: 2})
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	mgr := station.New(station.FromTuning(tuning.Defaults()), grid, log.New(io.Discard, "", 0), nil)
	return New(grid, mgr, "run-test")
}

func TestRenderMapShowsFleetKnowledge(t *testing.T) {
	snap := world.Snapshot{
		Width:  5,
		Height: 3,
		Tiles: []world.TileSnapshot{
			{Coord: world.Coord{Row: 0, Col: 0}, Terrain: world.TerrainPlain, Discovered: true},
			{Coord: world.Coord{Row: 0, Col: 4}, Terrain: world.TerrainPlain, Discovered: true,
				Resource: world.Resource{Kind: world.KindEnergy, Quantity: 0}},
			{Coord: world.Coord{Row: 1, Col: 2}, Terrain: world.TerrainPlain, Discovered: true, Station: true},
			{Coord: world.Coord{Row: 1, Col: 4}, Terrain: world.TerrainPlain, Discovered: true,
				Resource: world.Resource{Kind: world.KindMineral, Quantity: 12}},
			{Coord: world.Coord{Row: 2, Col: 3}, Terrain: world.TerrainDune, Discovered: true},
			{Coord: world.Coord{Row: 2, Col: 4}, Terrain: world.TerrainRidge, Discovered: true},
		},
	}
	robots := []robot.Status{
		{ID: 1, Kind: robot.KindExplorer, Pos: world.Coord{Row: 0, Col: 0}},
		{ID: 2, Kind: robot.KindCollector, Pos: world.Coord{Row: 2, Col: 3}, Stranded: true},
	}

	lines := strings.Split(renderMap(snap, robots), "\n")
	if len(lines) != 3 {
		t.Fatalf("map has %d rows, want 3", len(lines))
	}
	row0 := []rune(lines[0])
	row1 := []rune(lines[1])
	row2 := []rune(lines[2])
	if row0[0] != 'E' {
		t.Fatalf("robot overlay = %q, want E", row0[0])
	}
	if row0[1] != glyphFog {
		t.Fatalf("unsurveyed tile = %q, want fog", row0[1])
	}
	if row0[4] != glyphPlain {
		t.Fatalf("depleted deposit = %q, want terrain glyph", row0[4])
	}
	if row1[2] != glyphStation {
		t.Fatalf("station tile = %q, want %q", row1[2], glyphStation)
	}
	if row1[4] != glyphMineral {
		t.Fatalf("mineral tile = %q, want %q", row1[4], glyphMineral)
	}
	if row2[3] != '!' {
		t.Fatalf("stranded robot = %q, want !", row2[3])
	}
	if row2[4] != glyphRidge {
		t.Fatalf("ridge tile = %q, want %q", row2[4], glyphRidge)
	}
}

func TestUpdateFeedCachesAndReschedules(t *testing.T) {
	app := testApp(t)
	msg := app.buildFeed()

	model, cmd := app.Update(msg)
	app, ok := model.(*App)
	if !ok {
		t.Fatalf("unexpected model type: %T", model)
	}
	if !app.hasFeed {
		t.Fatal("feed not cached")
	}
	if cmd == nil {
		t.Fatal("expected a scheduled refresh command")
	}
	if app.feed.world.Width != 10 || app.feed.world.Height != 6 {
		t.Fatalf("feed dims = %dx%d", app.feed.world.Width, app.feed.world.Height)
	}
	// The pad is surveyed at construction, so the fleet map starts non-empty.
	if app.feed.knowledge.KnownTiles != 4 {
		t.Fatalf("KnownTiles = %d, want 4", app.feed.knowledge.KnownTiles)
	}
	if len(app.feed.merges) != 4 {
		t.Fatalf("merge tail = %d entries, want 4", len(app.feed.merges))
	}
}

func TestQuitKeysEmitQuit(t *testing.T) {
	keys := []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	}
	for _, key := range keys {
		app := testApp(t)
		_, cmd := app.Update(key)
		if cmd == nil {
			t.Fatalf("key %q: no command", key.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("key %q: expected tea.QuitMsg", key.String())
		}
	}
}

func TestViewRendersPanels(t *testing.T) {
	app := testApp(t)
	model, _ := app.Update(app.buildFeed())
	app = model.(*App)

	view := app.View()
	for _, want := range []string{"run-test", "Surface 10x6", "Known tiles", "Recent merges", "No robots deployed."} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}

	// Fake one roster entry and re-render.
	app.feed.robots = []robot.Status{{
		ID: 3, Kind: robot.KindScientist, Phase: robot.PhaseMoving,
		Pos: world.Coord{Row: 4, Col: 2}, Energy: 80, MaxEnergy: 120, CargoTotal: 0,
	}}
	view = app.View()
	if !strings.Contains(view, "scientist") || !strings.Contains(view, "moving") {
		t.Fatalf("roster entry missing:\n%s", view)
	}
}
