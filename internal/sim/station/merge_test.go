package station

import (
	"io"
	"log"
	"testing"
	"time"

	"surveyor.ai/internal/sim/knowledge"
	"surveyor.ai/internal/sim/robot"
	"surveyor.ai/internal/sim/world"
)

func testRobotConfig() robot.Config {
	return robot.Config{
		MaxEnergy:        100,
		MoveCost:         1,
		ActionCost:       1,
		LowEnergy:        20,
		RechargeRate:     15,
		ViewRadius:       2,
		CargoCapacity:    10,
		HarvestPerAction: 1,
		ShareInterval:    1000,
		ShareBatchMax:    512,
		CycleMin:         time.Hour,
		CycleMax:         2 * time.Hour,
		MergeTimeout:     50 * time.Millisecond,
	}
}

func testStationConfig() Config {
	return Config{
		MaxRobots:         4,
		EventCapacity:     64,
		DirectiveCapacity: 4,
		GracePeriod:       40 * time.Millisecond,
		SyncBatchMax:      512,
		Explorer:          testRobotConfig(),
		Collector:         testRobotConfig(),
		Scientist:         testRobotConfig(),
	}
}

// newTestManager builds a station over a flat 8x8 world with a 3x3 pad in
// the corner. The pad bootstrap runs as in production, so canonical state
// starts with nine station-stamped tiles.
func newTestManager(t *testing.T, cfg Config, j MergeJournal) *Manager {
	t.Helper()
	tiles := make([]world.Tile, 8*8)
	g, err := world.New(8, 8, tiles, world.Rect{MinRow: 0, MinCol: 0, MaxRow: 2, MaxCol: 2})
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return New(cfg, g, log.New(io.Discard, "", 0), j)
}

// seenAt copies the per-origin version stamps the canonical map holds for
// one tile.
func seenAt(m *Manager, at world.Coord) map[knowledge.RobotID]uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kb, ok := m.kb[at]
	if !ok {
		return nil
	}
	out := make(map[knowledge.RobotID]uint64, len(kb.seen))
	for origin, v := range kb.seen {
		out[origin] = v
	}
	return out
}

func TestMergeOutcomes(t *testing.T) {
	m := newTestManager(t, testStationConfig(), nil)
	base := m.KnowledgeStats()
	at := world.Coord{Row: 5, Col: 5}
	duneFacts := knowledge.Facts{Terrain: world.TerrainDune, Discovered: true}
	ridgeFacts := knowledge.Facts{Terrain: world.TerrainRidge, Discovered: true}

	recs := m.MergeKnowledge(1, []knowledge.Entry{{Coord: at, Facts: duneFacts, Origin: 1, Version: 1}})
	if len(recs) != 1 || recs[0].Outcome != MergeApplied {
		t.Fatalf("fresh entry: got %+v, want one applied record", recs)
	}
	if recs[0].ID == "" || recs[0].Seq == 0 {
		t.Fatalf("applied record missing id or seq: %+v", recs[0])
	}

	recs = m.MergeKnowledge(1, []knowledge.Entry{{Coord: at, Facts: duneFacts, Origin: 1, Version: 1}})
	if recs[0].Outcome != MergeStale {
		t.Fatalf("replayed entry: got %q, want %q", recs[0].Outcome, MergeStale)
	}

	recs = m.MergeKnowledge(2, []knowledge.Entry{{Coord: at, Facts: ridgeFacts, Origin: 2, Version: 1}})
	if recs[0].Outcome != MergeConflict {
		t.Fatalf("cross-origin displacement: got %q, want %q", recs[0].Outcome, MergeConflict)
	}
	if recs[0].Displaced == nil {
		t.Fatal("conflict record carries no displaced snapshot")
	}
	if recs[0].Displaced.Origin != 1 || recs[0].Displaced.Facts != duneFacts {
		t.Fatalf("displaced snapshot = %+v, want origin 1 dune facts", *recs[0].Displaced)
	}
	if recs[0].Incoming.Origin != 2 || recs[0].Incoming.Facts != ridgeFacts {
		t.Fatalf("incoming snapshot = %+v, want origin 2 ridge facts", recs[0].Incoming)
	}

	st := m.KnowledgeStats()
	if got, want := st.Applied-base.Applied, uint64(1); got != want {
		t.Fatalf("applied delta = %d, want %d", got, want)
	}
	if got, want := st.Stale-base.Stale, uint64(1); got != want {
		t.Fatalf("stale delta = %d, want %d", got, want)
	}
	if got, want := st.Conflicts-base.Conflicts, uint64(1); got != want {
		t.Fatalf("conflict delta = %d, want %d", got, want)
	}
	if got, want := st.LogLen-base.LogLen, 3; got != want {
		t.Fatalf("merge log grew by %d, want %d", got, want)
	}

	tail := m.MergeLogTail(2)
	if len(tail) != 2 {
		t.Fatalf("MergeLogTail(2) returned %d records", len(tail))
	}
	if tail[0].Outcome != MergeStale || tail[1].Outcome != MergeConflict {
		t.Fatalf("tail outcomes = %q, %q; want stale then conflict", tail[0].Outcome, tail[1].Outcome)
	}
}

func TestMergeSameFactsAcrossOriginsIsNoConflict(t *testing.T) {
	m := newTestManager(t, testStationConfig(), nil)
	at := world.Coord{Row: 6, Col: 3}
	facts := knowledge.Facts{Terrain: world.TerrainPlain, Discovered: true}

	m.MergeKnowledge(1, []knowledge.Entry{{Coord: at, Facts: facts, Origin: 1, Version: 4}})
	recs := m.MergeKnowledge(2, []knowledge.Entry{{Coord: at, Facts: facts, Origin: 2, Version: 2}})
	if recs[0].Outcome != MergeApplied {
		t.Fatalf("agreeing observation: got %q, want %q", recs[0].Outcome, MergeApplied)
	}
	if m.KnowledgeStats().Conflicts != 0 {
		t.Fatal("agreeing observations must not count as conflicts")
	}

	seen := seenAt(m, at)
	if seen[1] != 4 || seen[2] != 2 {
		t.Fatalf("seen stamps = %v, want origin 1 at 4 and origin 2 at 2", seen)
	}
}

func TestMergeReplayKeepsCanonicalStateIdentical(t *testing.T) {
	m := newTestManager(t, testStationConfig(), nil)
	batch := []knowledge.Entry{
		{Coord: world.Coord{Row: 4, Col: 4}, Facts: knowledge.Facts{Terrain: world.TerrainDune, Discovered: true}, Origin: 3, Version: 1},
		{Coord: world.Coord{Row: 4, Col: 5}, Facts: knowledge.Facts{Terrain: world.TerrainRidge}, Origin: 3, Version: 2},
		{Coord: world.Coord{Row: 7, Col: 0}, Facts: knowledge.Facts{Discovered: true, Resource: world.Resource{Kind: world.KindEnergy, Quantity: 30}}, Origin: 3, Version: 3},
	}

	m.MergeKnowledge(3, batch)
	before := m.SyncBatch()

	for _, rec := range m.MergeKnowledge(3, batch) {
		if rec.Outcome != MergeStale {
			t.Fatalf("replayed entry at %+v: got %q, want stale", rec.Coord, rec.Outcome)
		}
	}

	after := m.SyncBatch()
	if len(after) != len(before) {
		t.Fatalf("canonical size changed across replay: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("canonical entry %d changed across replay: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestMergeOrderIndependentVersionStamps(t *testing.T) {
	x := world.Coord{Row: 5, Col: 1}
	y := world.Coord{Row: 5, Col: 2}
	z := world.Coord{Row: 6, Col: 6}
	batchA := []knowledge.Entry{
		{Coord: x, Facts: knowledge.Facts{Terrain: world.TerrainDune, Discovered: true}, Origin: 1, Version: 1},
		{Coord: y, Facts: knowledge.Facts{Discovered: true}, Origin: 1, Version: 2},
	}
	batchB := []knowledge.Entry{
		{Coord: x, Facts: knowledge.Facts{Terrain: world.TerrainRidge, Discovered: true}, Origin: 2, Version: 1},
		{Coord: z, Facts: knowledge.Facts{Discovered: true}, Origin: 2, Version: 2},
	}

	ab := newTestManager(t, testStationConfig(), nil)
	ab.MergeKnowledge(1, batchA)
	ab.MergeKnowledge(2, batchB)

	ba := newTestManager(t, testStationConfig(), nil)
	ba.MergeKnowledge(2, batchB)
	ba.MergeKnowledge(1, batchA)

	for _, at := range []world.Coord{x, y, z} {
		sa, sb := seenAt(ab, at), seenAt(ba, at)
		if len(sa) != len(sb) {
			t.Fatalf("seen maps at %+v differ: %v vs %v", at, sa, sb)
		}
		for origin, v := range sa {
			if sb[origin] != v {
				t.Fatalf("seen maps at %+v differ for origin %d: %d vs %d", at, origin, v, sb[origin])
			}
		}
	}
	if a, b := ab.KnowledgeStats(), ba.KnowledgeStats(); a.KnownTiles != b.KnownTiles || a.Conflicts != b.Conflicts {
		t.Fatalf("stats differ across merge order: %+v vs %+v", a, b)
	}
}

func TestSyncBatchSortedAndCapped(t *testing.T) {
	cfg := testStationConfig()
	m := newTestManager(t, cfg, nil)
	m.MergeKnowledge(1, []knowledge.Entry{
		{Coord: world.Coord{Row: 7, Col: 7}, Facts: knowledge.Facts{Discovered: true}, Origin: 1, Version: 1},
		{Coord: world.Coord{Row: 3, Col: 0}, Facts: knowledge.Facts{Discovered: true}, Origin: 1, Version: 2},
		{Coord: world.Coord{Row: 3, Col: 6}, Facts: knowledge.Facts{Discovered: true}, Origin: 1, Version: 3},
	})

	batch := m.SyncBatch()
	if len(batch) != 12 {
		t.Fatalf("batch size = %d, want 9 pad tiles + 3 merged", len(batch))
	}
	for i := 1; i < len(batch); i++ {
		if !batch[i-1].Coord.Less(batch[i].Coord) {
			t.Fatalf("batch not row-major at %d: %+v then %+v", i, batch[i-1].Coord, batch[i].Coord)
		}
	}

	m.cfg.SyncBatchMax = 5
	capped := m.SyncBatch()
	if len(capped) != 5 {
		t.Fatalf("capped batch size = %d, want 5", len(capped))
	}
	for i := range capped {
		if capped[i] != batch[i] {
			t.Fatalf("capped batch diverges at %d: %+v vs %+v", i, capped[i], batch[i])
		}
	}
}

type memJournal struct {
	recs []MergeRecord
}

func (j *memJournal) WriteMerge(rec MergeRecord) error {
	j.recs = append(j.recs, rec)
	return nil
}

func TestMergeJournalReceivesEveryRecord(t *testing.T) {
	j := &memJournal{}
	m := newTestManager(t, testStationConfig(), j)
	if len(j.recs) != 9 {
		t.Fatalf("pad bootstrap journaled %d records, want 9", len(j.recs))
	}

	at := world.Coord{Row: 4, Col: 1}
	m.MergeKnowledge(5, []knowledge.Entry{{Coord: at, Facts: knowledge.Facts{Discovered: true}, Origin: 5, Version: 1}})
	if len(j.recs) != 10 {
		t.Fatalf("journal holds %d records, want 10", len(j.recs))
	}
	last := j.recs[len(j.recs)-1]
	if last.Coord != at || last.Sender != 5 || last.Outcome != MergeApplied {
		t.Fatalf("last journaled record = %+v", last)
	}
}
