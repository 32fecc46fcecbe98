package simtest

import (
	"testing"
	"time"

	"surveyor.ai/internal/sim/knowledge"
)

func TestScientistsFileFindings(t *testing.T) {
	h := NewHarness(t, FastTuning())

	h.WaitFor(15*time.Second, func() bool {
		return h.Station.ScienceCount() > 0
	}, "no science report arrived")

	recs := h.Station.ScienceLog()
	if len(recs) == 0 {
		t.Fatal("science log empty after a report was counted")
	}
	first := recs[0]
	if first.Findings.Note == "" {
		t.Fatalf("report carries no note: %+v", first)
	}
	if first.Robot == knowledge.Station {
		t.Fatalf("report not attributed to a robot: %+v", first)
	}
}
