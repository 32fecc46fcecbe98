// Package simtest boots the assembled simulation (generated surface,
// station loop, live fleet) and asserts on externally visible behavior
// only. The per-package tests pin down the mechanisms; these pin down
// that the pieces wired together actually survey, collect, and report.
package simtest

import (
	"context"
	"io"
	"log"
	"sort"
	"sync"
	"testing"
	"time"

	"surveyor.ai/internal/sim/robot"
	"surveyor.ai/internal/sim/station"
	"surveyor.ai/internal/sim/terrain"
	"surveyor.ai/internal/sim/tuning"
	"surveyor.ai/internal/sim/world"
)

const seededDepositQty = 40

// FastTuning is the default config shrunk to millisecond cycles on a
// small, deposit-dense map, so a whole expedition fits in a test budget.
func FastTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.Map = tuning.MapTuning{
		Width:         24,
		Height:        12,
		TerrainSeed:   99,
		ResourceSeed:  7,
		ResourceCount: 14,
		StationSize:   2,
	}
	t.Swarm = tuning.SwarmTuning{MaxRobots: 8, Explorers: 2, Collectors: 2, Scientists: 1}
	t.Station.GracePeriodMs = 200
	t.Station.MergeTimeoutMs = 100
	for _, r := range []*tuning.RobotTuning{&t.Explorer, &t.Collector, &t.Scientist} {
		r.CycleMinMs = 1
		r.CycleMaxMs = 3
		r.ShareInterval = 2
	}
	// Small hold and big bites, so deliveries happen within seconds.
	t.Collector.CargoCapacity = 10
	t.Collector.HarvestPerAction = 5
	return t
}

// Harness owns one running expedition. It goes through exported APIs
// only, so these tests stay black-box.
type Harness struct {
	T       *testing.T
	Tune    tuning.Tuning
	Grid    *world.Grid
	Station *station.Manager
	Journal *memJournal

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewHarness generates the surface, builds the station, spawns the fleet
// per the swarm tuning, and starts the station loop. Shutdown runs via
// t.Cleanup, so tests only stop early when they want to assert on the
// drained state.
func NewHarness(t *testing.T, tune tuning.Tuning) *Harness {
	t.Helper()

	layout, err := terrain.Generate(terrain.Params{
		Width:         tune.Map.Width,
		Height:        tune.Map.Height,
		TerrainSeed:   tune.Map.TerrainSeed,
		ResourceSeed:  tune.Map.ResourceSeed,
		ResourceCount: tune.Map.ResourceCount,
		StationSize:   tune.Map.StationSize,
	})
	if err != nil {
		t.Fatalf("terrain.Generate: %v", err)
	}
	seedNearbyDeposits(layout.Tiles, layout.Width, layout.Height, layout.Station)

	grid, err := world.New(layout.Width, layout.Height, layout.Tiles, layout.Station)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}

	j := &memJournal{}
	mgr := station.New(station.FromTuning(tune), grid, log.New(io.Discard, "", 0), j)

	ctx, cancel := context.WithCancel(context.Background())
	h := &Harness{
		T:       t,
		Tune:    tune,
		Grid:    grid,
		Station: mgr,
		Journal: j,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	spawn := func(kind robot.Kind, n int) {
		for i := 0; i < n; i++ {
			if _, err := mgr.CreateRobot(ctx, kind); err != nil {
				t.Fatalf("CreateRobot(%s): %v", kind, err)
			}
		}
	}
	spawn(robot.KindExplorer, tune.Swarm.Explorers)
	spawn(robot.KindCollector, tune.Swarm.Collectors)
	spawn(robot.KindScientist, tune.Swarm.Scientists)

	go func() {
		mgr.Run(ctx)
		close(h.done)
	}()
	t.Cleanup(h.Shutdown)
	return h
}

// Shutdown cancels the run and waits for the station to drain the fleet.
// Safe to call more than once.
func (h *Harness) Shutdown() {
	h.once.Do(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(10 * time.Second):
			h.T.Errorf("station did not drain the fleet within 10s")
		}
	})
}

// WaitFor polls cond until it holds or the budget runs out.
func (h *Harness) WaitFor(d time.Duration, cond func() bool, msg string) {
	h.T.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	h.T.Fatalf("timeout: %s", msg)
}

// seedNearbyDeposits pins one deposit of each kind onto the open tiles
// closest to the pad. The resource seed is free to roll any mix, so
// without this a collect or analyze scenario could have nothing to work
// on.
func seedNearbyDeposits(tiles []world.Tile, width, height int, pad world.Rect) {
	center := pad.Center()
	var open []world.Coord
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			c := world.Coord{Row: row, Col: col}
			tile := tiles[row*width+col]
			if !tile.Terrain.Walkable() || pad.Contains(c) || tile.Resource.Kind != world.KindNone {
				continue
			}
			open = append(open, c)
		}
	}
	dist := func(c world.Coord) int {
		dr := c.Row - center.Row
		dc := c.Col - center.Col
		if dr < 0 {
			dr = -dr
		}
		if dc < 0 {
			dc = -dc
		}
		return dr + dc
	}
	sort.Slice(open, func(i, j int) bool { return dist(open[i]) < dist(open[j]) })

	kinds := []world.ResourceKind{world.KindEnergy, world.KindMineral, world.KindScienceSite}
	for i, kind := range kinds {
		if i >= len(open) {
			return
		}
		c := open[i]
		tiles[c.Row*width+c.Col].Resource = world.Resource{Kind: kind, Quantity: seededDepositQty}
	}
}

// memJournal records merges in memory, standing in for the JSONL journal.
type memJournal struct {
	mu   sync.Mutex
	recs []station.MergeRecord
}

func (j *memJournal) WriteMerge(rec station.MergeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs = append(j.recs, rec)
	return nil
}

func (j *memJournal) Records() []station.MergeRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]station.MergeRecord, len(j.recs))
	copy(out, j.recs)
	return out
}

func (j *memJournal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.recs)
}
