// Package comms defines the event vocabulary robots and the station exchange
// and the bounded mailboxes that carry it. Senders block when a mailbox is
// full; nothing is silently dropped on the reliable paths.
package comms

import (
	"surveyor.ai/internal/sim/knowledge"
	"surveyor.ai/internal/sim/world"
)

// Event is the closed set of messages on the wire between robots and the
// station. EventKind doubles as the type marker and the label used in logs
// and journals.
type Event interface {
	EventKind() string
}

// ExplorationData is a batch of fresh observations from a survey action.
type ExplorationData struct {
	Robot   knowledge.RobotID
	Entries []knowledge.Entry
}

// CollectionData reports one successful harvest.
type CollectionData struct {
	Robot     knowledge.RobotID
	Coord     world.Coord
	Kind      world.ResourceKind
	Collected int
}

// Findings is what a scientist extracts from a site.
type Findings struct {
	Richness int    `json:"richness"`
	Note     string `json:"note"`
}

// ScienceData reports one completed site analysis.
type ScienceData struct {
	Robot    knowledge.RobotID
	Coord    world.Coord
	Findings Findings
}

// KnowledgeShare carries recent observations to the station. With
// RequestSync set the sender wants the canonical map pushed back; the push
// travels as another KnowledgeShare with the station as sender.
type KnowledgeShare struct {
	Robot       knowledge.RobotID
	Entries     []knowledge.Entry
	RequestSync bool
}

// LowEnergy warns that a robot crossed its reserve threshold. Stranded means
// it hit zero outside the station and cannot move again on its own.
type LowEnergy struct {
	Robot     knowledge.RobotID
	Pos       world.Coord
	Remaining float64
	Stranded  bool
}

// Shutdown is an exit notice. Sent by the station it orders a robot to wind
// down; sent by a robot it announces that its loop has ended.
type Shutdown struct {
	Robot  knowledge.RobotID
	Reason string
}

func (ExplorationData) EventKind() string { return "exploration_data" }
func (CollectionData) EventKind() string  { return "collection_data" }
func (ScienceData) EventKind() string     { return "science_data" }
func (KnowledgeShare) EventKind() string  { return "knowledge_share" }
func (LowEnergy) EventKind() string       { return "low_energy" }
func (Shutdown) EventKind() string        { return "shutdown" }
