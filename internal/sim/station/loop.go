package station

import (
	"context"
	"sync"
	"time"

	"surveyor.ai/internal/sim/comms"
	"surveyor.ai/internal/sim/knowledge"
	"surveyor.ai/internal/sim/world"
)

// housekeepInterval is how often the station checks grace deadlines.
const housekeepInterval = 250 * time.Millisecond

// Run drains the shared event queue until ctx is canceled, then orders every
// active robot to shut down, waits for their loops to exit, and archives the
// final notices they sent on the way out.
func (m *Manager) Run(ctx context.Context) {
	hkCtx, stopHK := context.WithCancel(context.Background())
	var hk sync.WaitGroup
	hk.Add(1)
	go func() {
		defer hk.Done()
		m.housekeeping(hkCtx)
	}()

	for {
		ev, err := m.inbox.Receive(ctx)
		if err != nil {
			break
		}
		m.handle(ev)
	}

	stopHK()
	hk.Wait()
	m.drainAndStop()
}

// drainAndStop runs after the main loop: robots are told to stop, and the
// inbox keeps being served so their final sends cannot block their exit.
func (m *Manager) drainAndStop() {
	m.broadcastShutdown("station stopping")

	done := make(chan struct{})
	go func() {
		m.robots.Wait()
		close(done)
	}()

	for {
		if ev, ok := m.inbox.TryReceive(); ok {
			m.handle(ev)
			continue
		}
		select {
		case <-done:
			// Every robot has exited, so an empty inbox is a drained inbox.
			m.inbox.Close()
			ks := m.KnowledgeStats()
			m.logger.Printf("station: stopped, merges applied=%d stale=%d conflict=%d", ks.Applied, ks.Stale, ks.Conflicts)
			return
		default:
			time.Sleep(2 * time.Millisecond)
		}
	}
}

func (m *Manager) housekeeping(ctx context.Context) {
	tick := time.NewTicker(housekeepInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			m.expireGrace(now)
		}
	}
}

func (m *Manager) handle(ev comms.Event) {
	switch e := ev.(type) {
	case comms.ExplorationData:
		recs := m.MergeKnowledge(e.Robot, e.Entries)
		m.logger.Printf("robot %d: exploration report, %d entries", e.Robot, len(recs))
	case comms.CollectionData:
		m.recordCollection(e)
	case comms.ScienceData:
		m.recordScience(e)
	case comms.KnowledgeShare:
		m.MergeKnowledge(e.Robot, e.Entries)
		if e.RequestSync {
			m.pushSync(e.Robot)
		}
	case comms.LowEnergy:
		m.handleLowEnergy(e)
	case comms.Shutdown:
		m.retireSlot(e.Robot, e.Reason)
	default:
		m.logger.Printf("station: dropping unknown event %q", ev.EventKind())
	}
}

func (m *Manager) recordCollection(e comms.CollectionData) {
	m.mu.Lock()
	m.collected[e.Kind] += e.Collected
	per := m.perRobot[e.Robot]
	if per == nil {
		per = make(map[world.ResourceKind]int)
		m.perRobot[e.Robot] = per
	}
	per[e.Kind] += e.Collected
	m.mu.Unlock()
	m.logger.Printf("robot %d: collected %d %s at %+v", e.Robot, e.Collected, e.Kind, e.Coord)

	if m.audit != nil {
		rec := CollectionRecord{Robot: e.Robot, Coord: e.Coord, Kind: e.Kind, Amount: e.Collected, At: time.Now()}
		if err := m.audit.WriteCollection(rec); err != nil {
			m.logger.Printf("audit collection write: %v", err)
		}
	}
}

func (m *Manager) recordScience(e comms.ScienceData) {
	rec := ScienceRecord{
		Robot:    e.Robot,
		Coord:    e.Coord,
		Findings: e.Findings,
		At:       time.Now(),
	}
	m.mu.Lock()
	m.science = append(m.science, rec)
	n := len(m.science)
	m.mu.Unlock()
	m.logger.Printf("robot %d: science report #%d from %+v (richness %d)", e.Robot, n, e.Coord, e.Findings.Richness)

	if m.audit != nil {
		if err := m.audit.WriteScience(rec); err != nil {
			m.logger.Printf("audit science write: %v", err)
		}
	}
}

// pushSync answers a sync request with the canonical map, capped at the
// configured batch size. A full directive queue just drops the push; the
// requesting robot gives up waiting after its merge timeout.
func (m *Manager) pushSync(id knowledge.RobotID) {
	m.slotMu.RLock()
	s := m.slots[id]
	m.slotMu.RUnlock()
	if s == nil || !s.active {
		return
	}
	batch := m.SyncBatch()
	if !s.directives.TrySend(comms.KnowledgeShare{Robot: knowledge.Station, Entries: batch}) {
		m.logger.Printf("robot %d: sync push dropped, directive queue full", id)
		return
	}
	m.logger.Printf("robot %d: sync push, %d canonical entries", id, len(batch))
}

// handleLowEnergy starts the retirement clock for stranded robots. A robot
// that still reaches the pad on its own recharges there and never hits the
// deadline; one pinned in the field is shut down when the grace runs out.
func (m *Manager) handleLowEnergy(e comms.LowEnergy) {
	if !e.Stranded {
		m.logger.Printf("robot %d: low energy (%.0f left), returning to station", e.Robot, e.Remaining)
		return
	}
	m.slotMu.Lock()
	if _, waiting := m.graceUntil[e.Robot]; !waiting {
		m.graceUntil[e.Robot] = time.Now().Add(m.cfg.GracePeriod)
	}
	m.slotMu.Unlock()
	m.logger.Printf("robot %d: stranded at %+v with %.0f energy, grace period started", e.Robot, e.Pos, e.Remaining)
}

func (m *Manager) expireGrace(now time.Time) {
	type target struct {
		id   knowledge.RobotID
		dest *comms.Mailbox
	}
	var expired []target
	m.slotMu.Lock()
	for id, deadline := range m.graceUntil {
		if now.Before(deadline) {
			continue
		}
		delete(m.graceUntil, id)
		if s := m.slots[id]; s != nil && s.active {
			expired = append(expired, target{id: id, dest: s.directives})
		}
	}
	m.slotMu.Unlock()

	var retry []knowledge.RobotID
	for _, t := range expired {
		if !t.dest.TrySend(comms.Shutdown{Robot: t.id, Reason: "grace period expired"}) {
			m.logger.Printf("robot %d: retirement directive dropped, will retry", t.id)
			retry = append(retry, t.id)
			continue
		}
		m.logger.Printf("robot %d: grace period expired, ordered to shut down", t.id)
	}
	if len(retry) > 0 {
		// Re-arm so the next housekeeping sweep tries again once the
		// robot has drained its queue.
		m.slotMu.Lock()
		for _, id := range retry {
			m.graceUntil[id] = now
		}
		m.slotMu.Unlock()
	}
}

func (m *Manager) broadcastShutdown(reason string) {
	m.slotMu.RLock()
	defer m.slotMu.RUnlock()
	for id, s := range m.slots {
		if !s.active {
			continue
		}
		s.directives.TrySend(comms.Shutdown{Robot: id, Reason: reason})
	}
}

// retireSlot marks a robot inactive once its exit notice arrives. The
// directive queue closes with it; late pushes to a retired robot are no-ops.
func (m *Manager) retireSlot(id knowledge.RobotID, reason string) {
	m.slotMu.Lock()
	s := m.slots[id]
	var was bool
	if s != nil {
		was = s.active
		s.active = false
	}
	delete(m.graceUntil, id)
	m.slotMu.Unlock()
	if s == nil {
		m.logger.Printf("robot %d: exit notice for unknown robot", id)
		return
	}
	if was {
		s.directives.Close()
		m.logger.Printf("robot %d: retired (%s)", id, reason)
	}
}
