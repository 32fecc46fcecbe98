package robot

import (
	"context"
	"sort"

	"surveyor.ai/internal/sim/comms"
	"surveyor.ai/internal/sim/world"
)

var cardinals = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// move advances one tile per cycle toward the target. Arrival flips to
// acting; a dead end hands control back to decide.
func (r *Robot) move(ctx context.Context) {
	if r.pos == r.target {
		r.phase = PhaseActing
		return
	}
	if r.energy < r.cfg.MoveCost {
		r.handleExhaustion(ctx)
		return
	}
	next, ok := r.step()
	if !ok {
		r.phase = PhaseDeciding
		return
	}
	r.pos = next
	r.energy -= r.cfg.MoveCost
	r.visited[next]++
	r.checkLowEnergy(ctx)
	if r.pos == r.target {
		r.phase = PhaseActing
	}
}

// step picks the next tile toward the target. Unvisited ground wins, then
// whatever closes the distance, ties row-major. Visit counts dominate on
// purpose: ridges get flowed around instead of bounced off. Candidates the
// cache knows to be ridges are skipped outright; the rest are verified
// against the live tile before committing, and a surprise ridge becomes new
// knowledge instead of a move.
func (r *Robot) step() (world.Coord, bool) {
	type cand struct {
		c       world.Coord
		visited int
		dist    int
	}
	cands := make([]cand, 0, 4)
	for _, d := range cardinals {
		c := r.pos.Add(d[0], d[1])
		if !r.grid.InBounds(c) || r.cache.KnownObstacle(c) {
			continue
		}
		cands = append(cands, cand{c: c, visited: r.visited[c], dist: c.DistSq(r.target)})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].visited != cands[j].visited {
			return cands[i].visited < cands[j].visited
		}
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].c.Less(cands[j].c)
	})
	for _, cd := range cands {
		snap, err := r.grid.Read(cd.c)
		if err != nil {
			continue
		}
		r.cache.Observe(snap)
		if !snap.Terrain.Walkable() {
			continue
		}
		return cd.c, true
	}
	return world.Coord{}, false
}

// smartStep is the undirected variant used while wandering: adjacent tiles
// holding unvisited known resources win, then unvisited ground, then
// whatever has been walked on least. Ties break randomly so idle robots
// spread out instead of marching in lockstep.
func (r *Robot) smartStep() (world.Coord, bool) {
	type candidate struct {
		c     world.Coord
		score int
	}
	cands := make([]candidate, 0, 4)
	for _, d := range cardinals {
		c := r.pos.Add(d[0], d[1])
		if !r.grid.InBounds(c) || r.cache.KnownObstacle(c) {
			continue
		}
		score := -r.visited[c]
		if r.visited[c] == 0 {
			score += 100
			if e, ok := r.cache.Get(c); ok && e.Facts.Resource.Present() {
				score += 100
			}
		}
		cands = append(cands, candidate{c: c, score: score})
	}
	if len(cands) == 0 {
		return world.Coord{}, false
	}
	r.rng.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })
	best := cands[0]
	for _, cand := range cands[1:] {
		if cand.score > best.score {
			best = cand
		}
	}
	snap, err := r.grid.Read(best.c)
	if err != nil {
		return world.Coord{}, false
	}
	r.cache.Observe(snap)
	if !snap.Terrain.Walkable() {
		return world.Coord{}, false
	}
	return best.c, true
}

// checkLowEnergy fires the reserve warning once per discharge and turns the
// robot around.
func (r *Robot) checkLowEnergy(ctx context.Context) {
	if r.lowSent || r.energy > r.cfg.LowEnergy {
		return
	}
	r.lowSent = true
	r.returning = true
	r.logf("low energy %.1f at %+v, returning to station", r.energy, r.pos)
	ev := comms.LowEnergy{Robot: r.id, Pos: r.pos, Remaining: r.energy}
	if err := r.station.Send(ctx, ev); err != nil {
		r.beginShutdown("station channel closed")
	}
}

// handleExhaustion covers a battery too weak to move. Inside the station
// that means recharging; outside it the robot is stranded and can only wait
// for the station to retire it.
func (r *Robot) handleExhaustion(ctx context.Context) {
	if r.grid.InStation(r.pos) {
		r.phase = PhaseRecharging
		return
	}
	if r.stranded {
		return
	}
	r.stranded = true
	r.logf("stranded at %+v with %.1f energy", r.pos, r.energy)
	ev := comms.LowEnergy{Robot: r.id, Pos: r.pos, Remaining: r.energy, Stranded: true}
	if err := r.station.Send(ctx, ev); err != nil {
		r.beginShutdown("station channel closed")
	}
}
