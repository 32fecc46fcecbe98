// Package world holds the shared planetary surface: a fixed rectangular grid
// of tiles guarded by one reader/writer lock. Robots read concurrently and
// mutate through non-blocking try operations; a pending writer blocks new
// readers, so mutations cannot be starved by scan traffic.
package world

import (
	"fmt"
	"sync"
)

type Grid struct {
	mu      sync.RWMutex
	width   int
	height  int
	tiles   []Tile
	station Rect
	stock   map[ResourceKind]int
}

// New builds a grid from a prepared tile slab in row-major order. Generation
// lives elsewhere; the grid does not care where its tiles came from.
func New(width, height int, tiles []Tile, station Rect) (*Grid, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("world: bad dimensions %dx%d", width, height)
	}
	if len(tiles) != width*height {
		return nil, fmt.Errorf("world: tile slab has %d cells, want %d", len(tiles), width*height)
	}
	if station.MinRow < 0 || station.MinCol < 0 || station.MaxRow >= height || station.MaxCol >= width ||
		station.MinRow > station.MaxRow || station.MinCol > station.MaxCol {
		return nil, fmt.Errorf("world: station rect %+v outside %dx%d grid", station, width, height)
	}
	g := &Grid{
		width:   width,
		height:  height,
		tiles:   make([]Tile, len(tiles)),
		station: station,
		stock:   make(map[ResourceKind]int),
	}
	copy(g.tiles, tiles)
	return g, nil
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

// StationRect is fixed at construction and safe to read without the lock.
func (g *Grid) StationRect() Rect { return g.station }

func (g *Grid) InStation(c Coord) bool { return g.station.Contains(c) }

func (g *Grid) InBounds(c Coord) bool {
	return c.Row >= 0 && c.Row < g.height && c.Col >= 0 && c.Col < g.width
}

func (g *Grid) index(c Coord) int { return c.Row*g.width + c.Col }

// TileSnapshot is a value copy of one tile. Mutating a snapshot never touches
// the grid.
type TileSnapshot struct {
	Coord      Coord    `json:"coord"`
	Terrain    Terrain  `json:"terrain"`
	Resource   Resource `json:"resource"`
	Discovered bool     `json:"discovered"`
	Station    bool     `json:"station"`
}

func (g *Grid) snapshotLocked(c Coord) TileSnapshot {
	t := g.tiles[g.index(c)]
	return TileSnapshot{
		Coord:      c,
		Terrain:    t.Terrain,
		Resource:   t.Resource,
		Discovered: t.Discovered,
		Station:    g.station.Contains(c),
	}
}

// Read returns a consistent copy of one tile.
func (g *Grid) Read(c Coord) (TileSnapshot, error) {
	if !g.InBounds(c) {
		return TileSnapshot{}, ErrNotFound
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshotLocked(c), nil
}

// SnapshotRegion copies the square window of the given radius around center,
// clipped at the map edge, under one read lock. Tiles come back in row-major
// order.
func (g *Grid) SnapshotRegion(center Coord, radius int) []TileSnapshot {
	if radius < 0 {
		return nil
	}
	minRow := max(0, center.Row-radius)
	maxRow := min(g.height-1, center.Row+radius)
	minCol := max(0, center.Col-radius)
	maxCol := min(g.width-1, center.Col+radius)
	if minRow > maxRow || minCol > maxCol {
		return nil
	}
	out := make([]TileSnapshot, 0, (maxRow-minRow+1)*(maxCol-minCol+1))
	g.mu.RLock()
	defer g.mu.RUnlock()
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			out = append(out, g.snapshotLocked(Coord{Row: row, Col: col}))
		}
	}
	return out
}

// Snapshot is a full consistent copy of the grid plus stockpile totals.
type Snapshot struct {
	Width     int                  `json:"width"`
	Height    int                  `json:"height"`
	Station   Rect                 `json:"station"`
	Tiles     []TileSnapshot       `json:"tiles"`
	Stockpile map[ResourceKind]int `json:"stockpile"`
}

func (g *Grid) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := Snapshot{
		Width:     g.width,
		Height:    g.height,
		Station:   g.station,
		Tiles:     make([]TileSnapshot, 0, len(g.tiles)),
		Stockpile: make(map[ResourceKind]int, len(g.stock)),
	}
	for row := 0; row < g.height; row++ {
		for col := 0; col < g.width; col++ {
			s.Tiles = append(s.Tiles, g.snapshotLocked(Coord{Row: row, Col: col}))
		}
	}
	for k, v := range g.stock {
		s.Stockpile[k] = v
	}
	return s
}

// Stockpile returns a copy of the deposited totals.
func (g *Grid) Stockpile() map[ResourceKind]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[ResourceKind]int, len(g.stock))
	for k, v := range g.stock {
		out[k] = v
	}
	return out
}
