package simtest

import (
	"testing"
	"time"

	"surveyor.ai/internal/sim/station"
)

// The journal a run leaves behind has to stand on its own: gapless
// sequence numbers and outcome totals that match the station's counters.
func TestShutdownSealsConsistentJournal(t *testing.T) {
	h := NewHarness(t, FastTuning())

	h.WaitFor(10*time.Second, func() bool {
		return h.Journal.Len() >= 50
	}, "journal saw fewer than 50 merges")
	h.Shutdown()

	if n := h.Station.ActiveRobots(); n != 0 {
		t.Fatalf("%d robots still active after shutdown", n)
	}

	recs := h.Journal.Records()
	for i, rec := range recs {
		if rec.Seq != uint64(i)+1 {
			t.Fatalf("journal gap at index %d: seq %d", i, rec.Seq)
		}
	}

	var applied, stale, conflicts uint64
	for _, rec := range recs {
		switch rec.Outcome {
		case station.MergeApplied:
			applied++
		case station.MergeStale:
			stale++
		case station.MergeConflict:
			conflicts++
		default:
			t.Fatalf("unknown outcome %q at seq %d", rec.Outcome, rec.Seq)
		}
	}
	st := h.Station.KnowledgeStats()
	if applied != st.Applied || stale != st.Stale || conflicts != st.Conflicts {
		t.Fatalf("journal counts applied=%d stale=%d conflicts=%d, station stats %+v",
			applied, stale, conflicts, st)
	}
	if len(recs) != st.LogLen {
		t.Fatalf("journal has %d records, merge log has %d", len(recs), st.LogLen)
	}
}
