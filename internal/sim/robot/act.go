package robot

import (
	"context"
	"errors"
	"fmt"

	"surveyor.ai/internal/sim/comms"
	"surveyor.ai/internal/sim/world"
)

func (r *Robot) act(ctx context.Context) {
	switch r.goal {
	case goalSurvey:
		r.actSurvey(ctx)
	case goalHarvest:
		r.actHarvest(ctx)
	case goalAnalyze:
		r.actAnalyze(ctx)
	case goalDock:
		r.actDock()
	default:
		r.goal = goalNone
		r.phase = PhaseIdle
	}
}

// affordAction gates every action on its energy cost. Too weak means head
// home instead.
func (r *Robot) affordAction() bool {
	if r.energy >= r.cfg.ActionCost {
		return true
	}
	r.returning = true
	r.phase = PhaseDeciding
	return false
}

// actSurvey marks the tile discovered and reports everything learned since
// the last share.
func (r *Robot) actSurvey(ctx context.Context) {
	if !r.affordAction() {
		return
	}
	err := r.grid.MarkDiscovered(r.pos)
	if errors.Is(err, world.ErrBusy) {
		r.phase = PhaseDeciding
		return
	}
	if err != nil {
		r.logf("survey failed at %+v: %v", r.pos, err)
		r.goal = goalNone
		r.phase = PhaseDeciding
		return
	}
	r.energy -= r.cfg.ActionCost
	if snap, rerr := r.grid.Read(r.pos); rerr == nil {
		r.cache.Observe(snap)
	}
	if batch := r.cache.DirtyBatch(r.cfg.ShareBatchMax); len(batch) > 0 {
		r.outbox = append(r.outbox, comms.ExplorationData{Robot: r.id, Entries: batch})
		r.sharedAt = r.cycles
	}
	clear(r.visited)
	r.goal = goalNone
	r.afterReport = PhaseIdle
	r.checkLowEnergy(ctx)
	if len(r.outbox) > 0 {
		r.phase = PhaseReporting
	} else {
		r.phase = PhaseIdle
	}
}

// actHarvest takes one bite out of the deposit underfoot. The robot keeps
// acting on the same tile until it is empty or the hold is full; losing a
// race to another collector just means picking a new target.
func (r *Robot) actHarvest(ctx context.Context) {
	if !r.affordAction() {
		return
	}
	want := r.cfg.HarvestPerAction
	if want < 1 {
		want = 1
	}
	if r.cfg.CargoCapacity > 0 {
		if room := r.cfg.CargoCapacity - r.cargoTotal(); want > room {
			want = room
		}
	}
	if want < 1 {
		r.setGoal(r.dockTarget(), goalDock)
		return
	}

	got, err := r.grid.TryCollect(r.pos, want)
	if errors.Is(err, world.ErrBusy) {
		r.phase = PhaseDeciding
		return
	}
	if err != nil {
		// Raced out or never real. Record what is actually here and move on.
		if snap, rerr := r.grid.Read(r.pos); rerr == nil {
			r.cache.Observe(snap)
		}
		r.logf("deposit at %+v unavailable: %v", r.pos, err)
		r.goal = goalNone
		r.phase = PhaseDeciding
		return
	}

	r.energy -= r.cfg.ActionCost
	snap, rerr := r.grid.Read(r.pos)
	if rerr != nil {
		r.goal = goalNone
		r.phase = PhaseDeciding
		return
	}
	r.cache.Observe(snap)
	kind := snap.Resource.Kind
	r.cargo[kind] += got
	r.outbox = append(r.outbox, comms.CollectionData{Robot: r.id, Coord: r.pos, Kind: kind, Collected: got})
	clear(r.visited)
	// Stay on the tile; the next acting cycle bites again or heads home.
	r.afterReport = PhaseActing
	r.phase = PhaseReporting
	r.checkLowEnergy(ctx)
}

// actAnalyze studies the site underfoot and reports findings. Sites already
// analyzed by a peer, learned through merge, are skipped without spending
// energy.
func (r *Robot) actAnalyze(ctx context.Context) {
	if !r.affordAction() {
		return
	}
	snap, err := r.grid.Read(r.pos)
	if err != nil {
		r.goal = goalNone
		r.phase = PhaseDeciding
		return
	}
	r.cache.Observe(snap)
	if snap.Resource.Kind != world.KindScienceSite {
		r.logf("no site to study at %+v", r.pos)
		r.goal = goalNone
		r.phase = PhaseDeciding
		return
	}
	if e, ok := r.cache.Get(r.pos); ok && e.Facts.Analyzed {
		r.goal = goalNone
		r.phase = PhaseDeciding
		return
	}

	r.energy -= r.cfg.ActionCost
	r.cache.MarkAnalyzed(r.pos)
	findings := comms.Findings{
		Richness: snap.Resource.Quantity,
		Note:     fmt.Sprintf("site on %s terrain", snap.Terrain),
	}
	r.outbox = append(r.outbox, comms.ScienceData{Robot: r.id, Coord: r.pos, Findings: findings})
	r.logf("analyzed site at %+v, richness %d", r.pos, findings.Richness)
	clear(r.visited)
	r.goal = goalNone
	r.afterReport = PhaseIdle
	r.phase = PhaseReporting
	r.checkLowEnergy(ctx)
}

// actDock unloads cargo, hands the station every unshared observation, and
// asks for the canonical map back before recharging.
func (r *Robot) actDock() {
	if !r.grid.InStation(r.pos) {
		r.setGoal(r.dockTarget(), goalDock)
		return
	}
	for kind, qty := range r.cargo {
		if qty > 0 {
			r.grid.Deposit(kind, qty)
			r.logf("deposited %d %s", qty, kind)
		}
	}
	clear(r.cargo)

	batch := r.cache.DirtyBatch(r.cfg.ShareBatchMax)
	r.outbox = append(r.outbox, comms.KnowledgeShare{Robot: r.id, Entries: batch, RequestSync: true})
	r.syncWanted = true
	r.sharedAt = r.cycles
	clear(r.visited)
	r.goal = goalNone
	if r.energy < r.cfg.MaxEnergy {
		r.afterReport = PhaseRecharging
	} else {
		r.afterReport = PhaseIdle
		r.returning = false
		r.lowSent = false
	}
	r.phase = PhaseReporting
}
