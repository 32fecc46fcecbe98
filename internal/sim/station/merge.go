package station

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"surveyor.ai/internal/sim/knowledge"
	"surveyor.ai/internal/sim/world"
)

// Merge outcomes as they appear in the merge log and journals.
const (
	MergeApplied  = "applied"
	MergeStale    = "stale"
	MergeConflict = "conflict"
)

// EntryStamp is one side of a merge: whose facts, at which version.
type EntryStamp struct {
	Origin  knowledge.RobotID `json:"origin"`
	Version uint64            `json:"version"`
	Facts   knowledge.Facts   `json:"facts"`
}

// MergeRecord is one line of the append-only merge history. Conflicts carry
// both snapshots so an operator can reconstruct what was displaced.
type MergeRecord struct {
	ID        string            `json:"id"`
	Seq       uint64            `json:"seq"`
	At        time.Time         `json:"at"`
	Sender    knowledge.RobotID `json:"sender"`
	Outcome   string            `json:"outcome"`
	Coord     world.Coord       `json:"coord"`
	Incoming  EntryStamp        `json:"incoming"`
	Displaced *EntryStamp       `json:"displaced,omitempty"`
}

// MergeJournal persists merge records. Implementations must tolerate being
// called from the station loop; a nil journal disables persistence.
type MergeJournal interface {
	WriteMerge(rec MergeRecord) error
}

// kbRecord is the canonical state of one tile: the facts that currently win
// plus the highest version seen from every origin that ever reported it.
type kbRecord struct {
	facts   knowledge.Facts
	origin  knowledge.RobotID
	version uint64
	seen    map[knowledge.RobotID]uint64
}

// MergeKnowledge folds a batch of versioned observations into the canonical
// map and returns one record per entry. The rules are deliberately small:
//
//   - an entry at or below the highest version already seen from its origin
//     is stale and changes nothing, so replays are harmless;
//   - a fresher entry displacing facts that came from a different origin
//     with different content is a conflict: it still wins (last applied),
//     but both snapshots go into the log;
//   - anything else is a plain apply.
//
// Versions from different origins are never compared against each other.
func (m *Manager) MergeKnowledge(sender knowledge.RobotID, entries []knowledge.Entry) []MergeRecord {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now()
	records := make([]MergeRecord, 0, len(entries))

	m.mu.Lock()
	for _, e := range entries {
		records = append(records, m.mergeLocked(sender, e, now))
	}
	m.mu.Unlock()

	if m.journal != nil {
		for _, rec := range records {
			if err := m.journal.WriteMerge(rec); err != nil {
				m.logger.Printf("merge journal write: %v", err)
			}
		}
	}
	return records
}

func (m *Manager) mergeLocked(sender knowledge.RobotID, e knowledge.Entry, now time.Time) MergeRecord {
	m.seq++
	rec := MergeRecord{
		ID:     uuid.New().String(),
		Seq:    m.seq,
		At:     now,
		Sender: sender,
		Coord:  e.Coord,
		Incoming: EntryStamp{
			Origin:  e.Origin,
			Version: e.Version,
			Facts:   e.Facts,
		},
	}

	kb, ok := m.kb[e.Coord]
	if !ok {
		kb = kbRecord{seen: make(map[knowledge.RobotID]uint64)}
	}
	if e.Version <= kb.seen[e.Origin] {
		rec.Outcome = MergeStale
		m.stale++
		m.mergeLog = append(m.mergeLog, rec)
		return rec
	}

	kb.seen[e.Origin] = e.Version
	rec.Outcome = MergeApplied
	if ok && kb.origin != e.Origin && kb.facts != e.Facts {
		rec.Outcome = MergeConflict
		displaced := EntryStamp{Origin: kb.origin, Version: kb.version, Facts: kb.facts}
		rec.Displaced = &displaced
		m.conflicts++
	} else {
		m.applied++
	}

	kb.facts = e.Facts
	kb.origin = e.Origin
	kb.version = e.Version
	m.kb[e.Coord] = kb
	m.mergeLog = append(m.mergeLog, rec)
	return rec
}

// SyncBatch is the canonical map as versioned entries, row-major, capped at
// the configured batch size. This is what gets pushed back to a robot that
// requested a sync.
func (m *Manager) SyncBatch() []knowledge.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]knowledge.Entry, 0, len(m.kb))
	for at, kb := range m.kb {
		out = append(out, knowledge.Entry{Coord: at, Facts: kb.facts, Origin: kb.origin, Version: kb.version})
	}
	sortEntries(out)
	if len(out) > m.cfg.SyncBatchMax {
		out = out[:m.cfg.SyncBatchMax]
	}
	return out
}

func sortEntries(entries []knowledge.Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Coord.Less(entries[j].Coord) })
}

// MergeLogTail returns the most recent n merge records, oldest first.
func (m *Manager) MergeLogTail(n int) []MergeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n < 1 || len(m.mergeLog) == 0 {
		return nil
	}
	if n > len(m.mergeLog) {
		n = len(m.mergeLog)
	}
	out := make([]MergeRecord, n)
	copy(out, m.mergeLog[len(m.mergeLog)-n:])
	return out
}

// KnowledgeStats summarizes the canonical map and merge history. The three
// outcome counters partition the merge log: every record lands in exactly one.
type KnowledgeStats struct {
	KnownTiles    int
	ResourceTiles int
	Applied       uint64
	Stale         uint64
	Conflicts     uint64
	LogLen        int
}

func (m *Manager) KnowledgeStats() KnowledgeStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := KnowledgeStats{
		KnownTiles: len(m.kb),
		Applied:    m.applied,
		Stale:      m.stale,
		Conflicts:  m.conflicts,
		LogLen:     len(m.mergeLog),
	}
	for _, kb := range m.kb {
		if kb.facts.Resource.Present() {
			s.ResourceTiles++
		}
	}
	return s
}
