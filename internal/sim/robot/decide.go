package robot

import (
	"surveyor.ai/internal/sim/knowledge"
	"surveyor.ai/internal/sim/world"
)

// decide picks the next target from the private knowledge cache. Heading
// home always wins: low batteries and full cargo holds beat curiosity.
func (r *Robot) decide() {
	if r.returning || r.cargoFull() {
		r.setGoal(r.dockTarget(), goalDock)
		return
	}
	switch r.kind {
	case KindExplorer:
		r.decideExplorer()
	case KindCollector:
		r.decideCollector()
	case KindScientist:
		r.decideScientist()
	default:
		r.wander()
	}
}

func (r *Robot) cargoFull() bool {
	return r.cfg.CargoCapacity > 0 && r.cargoTotal() >= r.cfg.CargoCapacity
}

// setGoal aims the robot. Standing on the target already skips straight to
// acting.
func (r *Robot) setGoal(target world.Coord, goal goalKind) {
	r.target = target
	r.goal = goal
	if r.pos == target {
		r.phase = PhaseActing
	} else {
		r.phase = PhaseMoving
	}
}

// dockTarget is the nearest station tile: the current position clamped into
// the station rectangle.
func (r *Robot) dockTarget() world.Coord {
	st := r.grid.StationRect()
	c := r.pos
	if c.Row < st.MinRow {
		c.Row = st.MinRow
	} else if c.Row > st.MaxRow {
		c.Row = st.MaxRow
	}
	if c.Col < st.MinCol {
		c.Col = st.MinCol
	} else if c.Col > st.MaxCol {
		c.Col = st.MaxCol
	}
	return c
}

func (r *Robot) decideExplorer() {
	target, ok := r.cache.Nearest(r.pos, func(e knowledge.Entry) bool {
		return e.Facts.Terrain.Walkable() && !e.Facts.Discovered && !e.Facts.Station
	})
	if ok {
		r.setGoal(target, goalSurvey)
		return
	}
	r.wander()
}

func (r *Robot) decideCollector() {
	target, ok := r.cache.Nearest(r.pos, func(e knowledge.Entry) bool {
		res := e.Facts.Resource
		if !res.Kind.Consumable() || res.Quantity < 1 {
			return false
		}
		if r.carry != world.KindNone && res.Kind != r.carry {
			return false
		}
		return e.Facts.Terrain.Walkable()
	})
	if ok {
		r.setGoal(target, goalHarvest)
		return
	}
	r.wander()
}

func (r *Robot) decideScientist() {
	target, ok := r.cache.Nearest(r.pos, func(e knowledge.Entry) bool {
		return e.Facts.Resource.Kind == world.KindScienceSite && !e.Facts.Analyzed
	})
	if ok {
		r.setGoal(target, goalAnalyze)
		return
	}
	r.wander()
}

// wander drifts one tile toward unexplored ground when the cache offers no
// proper target. Boxed-in robots go idle and rescan next cycle.
func (r *Robot) wander() {
	next, ok := r.smartStep()
	if !ok {
		r.phase = PhaseIdle
		return
	}
	r.target = next
	r.goal = goalWander
	r.phase = PhaseMoving
}
