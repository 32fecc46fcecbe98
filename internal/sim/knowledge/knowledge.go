// Package knowledge is the private map each robot carries: last-known facts
// per tile, stamped with the origin robot and a logical version. Versions
// are what the station's merge compares; wall clocks never enter into it.
package knowledge

import (
	"sort"

	"surveyor.ai/internal/sim/world"
)

type RobotID uint32

// Station is the reserved origin for entries minted by the station itself,
// such as the bootstrap survey of its own pad. Robots are numbered from 1.
const Station RobotID = 0

// Facts is everything a robot believes about one tile. Comparable so
// unchanged re-observations can be detected with ==.
type Facts struct {
	Terrain    world.Terrain  `json:"terrain"`
	Resource   world.Resource `json:"resource"`
	Discovered bool           `json:"discovered"`
	Analyzed   bool           `json:"analyzed"`
	Station    bool           `json:"station"`
}

func FactsFromTile(s world.TileSnapshot) Facts {
	return Facts{
		Terrain:    s.Terrain,
		Resource:   s.Resource,
		Discovered: s.Discovered,
		Station:    s.Station,
	}
}

// Entry is one versioned observation as it travels between robots and the
// station.
type Entry struct {
	Coord   world.Coord `json:"coord"`
	Facts   Facts       `json:"facts"`
	Origin  RobotID     `json:"origin"`
	Version uint64      `json:"version"`
}

// Cache is a single robot's view of the map. Not safe for concurrent use;
// each robot owns its cache exclusively.
type Cache struct {
	self    RobotID
	clock   uint64
	entries map[world.Coord]Entry
	dirty   map[world.Coord]struct{}
}

func NewCache(self RobotID) *Cache {
	return &Cache{
		self:    self,
		entries: make(map[world.Coord]Entry),
		dirty:   make(map[world.Coord]struct{}),
	}
}

func (c *Cache) Self() RobotID { return c.self }
func (c *Cache) Len() int      { return len(c.entries) }
func (c *Cache) Clock() uint64 { return c.clock }

func (c *Cache) Get(at world.Coord) (Entry, bool) {
	e, ok := c.entries[at]
	return e, ok
}

// Observe folds a fresh tile sighting. A sighting that changes nothing keeps
// the stored entry and mints no version; otherwise the entry is re-stamped
// with this robot as origin and the next local version. Analysis marks are
// local annotations, so a re-observation never clears one.
func (c *Cache) Observe(s world.TileSnapshot) (Entry, bool) {
	f := FactsFromTile(s)
	if prev, ok := c.entries[s.Coord]; ok && prev.Facts.Analyzed {
		f.Analyzed = true
	}
	return c.record(s.Coord, f)
}

// MarkAnalyzed stamps a known tile as studied. Unknown tiles are ignored;
// a scientist always observes its target before analyzing it.
func (c *Cache) MarkAnalyzed(at world.Coord) (Entry, bool) {
	prev, ok := c.entries[at]
	if !ok {
		return Entry{}, false
	}
	f := prev.Facts
	f.Analyzed = true
	return c.record(at, f)
}

func (c *Cache) record(at world.Coord, f Facts) (Entry, bool) {
	if prev, ok := c.entries[at]; ok && prev.Facts == f {
		return prev, false
	}
	c.clock++
	e := Entry{Coord: at, Facts: f, Origin: c.self, Version: c.clock}
	c.entries[at] = e
	c.dirty[at] = struct{}{}
	return e, true
}

// Fold merges entries received from the station or peers. A same-origin
// entry must carry a higher version to displace what is stored; entries from
// a different origin follow last-applied-wins, the same rule the station
// uses. Folded entries are not re-shared.
func (c *Cache) Fold(entries []Entry) int {
	applied := 0
	for _, e := range entries {
		prev, ok := c.entries[e.Coord]
		if ok && prev.Origin == e.Origin && e.Version <= prev.Version {
			continue
		}
		c.entries[e.Coord] = e
		applied++
	}
	return applied
}

// DirtyBatch drains up to max observations that have not been shared yet,
// in row-major order.
func (c *Cache) DirtyBatch(max int) []Entry {
	if max < 1 || len(c.dirty) == 0 {
		return nil
	}
	coords := make([]world.Coord, 0, len(c.dirty))
	for at := range c.dirty {
		coords = append(coords, at)
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	if len(coords) > max {
		coords = coords[:max]
	}
	out := make([]Entry, 0, len(coords))
	for _, at := range coords {
		out = append(out, c.entries[at])
		delete(c.dirty, at)
	}
	return out
}

// DirtyLen reports how many observations await sharing.
func (c *Cache) DirtyLen() int { return len(c.dirty) }

// Nearest scans known tiles for the closest one the predicate accepts.
// Distance is squared Euclidean; exact ties resolve row-major so concurrent
// robots with identical knowledge pick the same target.
func (c *Cache) Nearest(from world.Coord, pred func(Entry) bool) (world.Coord, bool) {
	var best world.Coord
	bestD := 0
	found := false
	for at, e := range c.entries {
		if !pred(e) {
			continue
		}
		d := from.DistSq(at)
		if !found || d < bestD || (d == bestD && at.Less(best)) {
			found = true
			bestD = d
			best = at
		}
	}
	return best, found
}

// KnownObstacle reports whether the robot has seen impassable terrain at c.
func (c *Cache) KnownObstacle(at world.Coord) bool {
	e, ok := c.entries[at]
	return ok && !e.Facts.Terrain.Walkable()
}

// Entries returns every stored entry in row-major order.
func (c *Cache) Entries() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Coord.Less(out[j].Coord) })
	return out
}
