package world

// Coord addresses a tile. Row 0 is the top edge, Col 0 the left edge.
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c Coord) Add(dr, dc int) Coord {
	return Coord{Row: c.Row + dr, Col: c.Col + dc}
}

// DistSq is the squared Euclidean distance between two coordinates.
func (c Coord) DistSq(o Coord) int {
	dr := c.Row - o.Row
	dc := c.Col - o.Col
	return dr*dr + dc*dc
}

// Less orders coordinates row-major. Used as the deterministic tie-break
// whenever two candidate tiles are equally attractive.
func (c Coord) Less(o Coord) bool {
	if c.Row != o.Row {
		return c.Row < o.Row
	}
	return c.Col < o.Col
}

type Terrain uint8

const (
	TerrainPlain Terrain = iota
	TerrainDune
	TerrainRidge
)

// Walkable reports whether robots can enter a tile of this terrain.
func (t Terrain) Walkable() bool { return t != TerrainRidge }

func (t Terrain) String() string {
	switch t {
	case TerrainPlain:
		return "plain"
	case TerrainDune:
		return "dune"
	case TerrainRidge:
		return "ridge"
	default:
		return "unknown"
	}
}

type ResourceKind uint8

const (
	KindNone ResourceKind = iota
	KindEnergy
	KindMineral
	KindScienceSite
)

// Consumable reports whether collection reduces the deposit. Science sites
// are studied in place and never deplete.
func (k ResourceKind) Consumable() bool { return k == KindEnergy || k == KindMineral }

func (k ResourceKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindEnergy:
		return "energy"
	case KindMineral:
		return "mineral"
	case KindScienceSite:
		return "science_site"
	default:
		return "unknown"
	}
}

// Resource is a deposit on a tile. The zero value means no resource was ever
// placed. Kind set with Quantity zero means a consumable deposit that has
// been exhausted.
type Resource struct {
	Kind     ResourceKind `json:"kind"`
	Quantity int          `json:"quantity"`
}

// Present reports whether anything harvestable or studyable remains.
func (r Resource) Present() bool {
	if r.Kind == KindNone {
		return false
	}
	if r.Kind.Consumable() {
		return r.Quantity > 0
	}
	return true
}

// Tile is the mutable world cell. Coordinates are implicit in grid position.
type Tile struct {
	Terrain    Terrain
	Resource   Resource
	Discovered bool
}

// Rect is an inclusive tile rectangle.
type Rect struct {
	MinRow, MinCol int
	MaxRow, MaxCol int
}

func (r Rect) Contains(c Coord) bool {
	return c.Row >= r.MinRow && c.Row <= r.MaxRow && c.Col >= r.MinCol && c.Col <= r.MaxCol
}

// Center returns the middle coordinate, rounded toward the origin.
func (r Rect) Center() Coord {
	return Coord{Row: (r.MinRow + r.MaxRow) / 2, Col: (r.MinCol + r.MaxCol) / 2}
}
