package robot

import (
	"context"
	"time"

	"surveyor.ai/internal/sim/comms"
)

// Run drives the robot until its context ends or the station orders it off.
// One iteration advances the cycle by a single phase action, then sleeps a
// randomized interval, so different robot classes naturally work at
// different paces.
func (r *Robot) Run(ctx context.Context) {
	defer r.finish()
	for {
		if r.phase == PhaseShuttingDown {
			return
		}
		select {
		case <-ctx.Done():
			r.beginShutdown("context canceled")
			continue
		default:
		}
		r.drainDirectives()
		if r.phase == PhaseShuttingDown {
			continue
		}
		if r.stranded {
			r.publishStatus()
			r.sleepCycle(ctx)
			continue
		}
		r.cycle(ctx)
		r.maybeShare(ctx)
		r.publishStatus()
		r.sleepCycle(ctx)
	}
}

func (r *Robot) cycle(ctx context.Context) {
	r.cycles++
	switch r.phase {
	case PhaseIdle:
		r.phase = PhaseScanning
	case PhaseScanning:
		r.scan()
		r.phase = PhaseDeciding
	case PhaseDeciding:
		r.decide()
	case PhaseMoving:
		r.move(ctx)
	case PhaseActing:
		r.act(ctx)
	case PhaseReporting:
		r.report(ctx)
	case PhaseRecharging:
		r.recharge()
	}
}

// scan folds everything within view into the private cache.
func (r *Robot) scan() {
	for _, snap := range r.grid.SnapshotRegion(r.pos, r.cfg.ViewRadius) {
		r.cache.Observe(snap)
	}
}

// drainDirectives applies everything the station has pushed since the last
// cycle. Directives never block the loop.
func (r *Robot) drainDirectives() {
	for {
		ev, ok := r.directives.TryReceive()
		if !ok {
			return
		}
		switch d := ev.(type) {
		case comms.Shutdown:
			r.beginShutdown(d.Reason)
			return
		case comms.KnowledgeShare:
			if n := r.cache.Fold(d.Entries); n > 0 {
				r.logf("folded %d canonical entries", n)
			}
		}
	}
}

// maybeShare pushes unshared observations to the station on the configured
// cadence.
func (r *Robot) maybeShare(ctx context.Context) {
	if r.phase == PhaseShuttingDown || r.cfg.ShareInterval == 0 {
		return
	}
	if r.cycles-r.sharedAt < r.cfg.ShareInterval || r.cache.DirtyLen() == 0 {
		return
	}
	batch := r.cache.DirtyBatch(r.cfg.ShareBatchMax)
	if len(batch) == 0 {
		return
	}
	r.sharedAt = r.cycles
	ev := comms.KnowledgeShare{Robot: r.id, Entries: batch}
	if err := r.station.Send(ctx, ev); err != nil {
		r.beginShutdown("station channel closed")
	}
}

// report flushes queued events in order, then optionally waits for the
// station to push the canonical map back.
func (r *Robot) report(ctx context.Context) {
	for i, ev := range r.outbox {
		if err := r.station.Send(ctx, ev); err != nil {
			r.outbox = r.outbox[:copy(r.outbox, r.outbox[i:])]
			r.beginShutdown("station channel closed")
			return
		}
	}
	r.outbox = r.outbox[:0]
	if r.syncWanted {
		r.syncWanted = false
		r.awaitSync(ctx)
		if r.phase == PhaseShuttingDown {
			return
		}
	}
	r.phase = r.afterReport
}

// awaitSync blocks on the directive mailbox until the canonical map arrives
// or the merge timeout expires. A robot is never held hostage by a busy
// station; on timeout it simply resumes with what it has.
func (r *Robot) awaitSync(ctx context.Context) {
	tctx, cancel := context.WithTimeout(ctx, r.cfg.MergeTimeout)
	defer cancel()
	for {
		ev, err := r.directives.Receive(tctx)
		if err != nil {
			r.logf("sync wait ended without canonical push")
			return
		}
		switch d := ev.(type) {
		case comms.KnowledgeShare:
			r.logf("synced %d canonical entries", r.cache.Fold(d.Entries))
			return
		case comms.Shutdown:
			r.beginShutdown(d.Reason)
			return
		}
	}
}

// recharge tops the battery up at the station rate and releases the robot
// once full.
func (r *Robot) recharge() {
	if !r.grid.InStation(r.pos) {
		r.phase = PhaseDeciding
		return
	}
	r.energy += r.cfg.RechargeRate
	if r.energy >= r.cfg.MaxEnergy {
		r.energy = r.cfg.MaxEnergy
		r.lowSent = false
		r.returning = false
		r.phase = PhaseIdle
		r.logf("recharged to full")
	}
}

func (r *Robot) beginShutdown(reason string) {
	if r.phase == PhaseShuttingDown {
		return
	}
	r.exitReason = reason
	r.phase = PhaseShuttingDown
	r.logf("shutting down: %s", reason)
}

// finish announces the exit so the station can retire the slot. The parent
// context is likely gone, so the notice gets its own short deadline.
func (r *Robot) finish() {
	r.publishStatus()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reason := r.exitReason
	if reason == "" {
		reason = "loop ended"
	}
	_ = r.station.Send(ctx, comms.Shutdown{Robot: r.id, Reason: reason})
}

func (r *Robot) sleepCycle(ctx context.Context) {
	d := r.cfg.CycleMin
	if jitter := r.cfg.CycleMax - r.cfg.CycleMin; jitter > 0 {
		d += time.Duration(r.rng.Int63n(int64(jitter)))
	}
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
