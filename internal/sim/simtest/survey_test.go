package simtest

import (
	"testing"
	"time"
)

func TestFleetSurveysBeyondThePad(t *testing.T) {
	h := NewHarness(t, FastTuning())

	pad := h.Tune.Map.StationSize * h.Tune.Map.StationSize
	h.WaitFor(10*time.Second, func() bool {
		return h.Station.KnowledgeStats().KnownTiles >= pad+56
	}, "canonical map never grew past the pad")

	h.WaitFor(10*time.Second, func() bool {
		return h.Station.KnowledgeStats().ResourceTiles >= 3
	}, "no deposits reached the canonical map")
}
