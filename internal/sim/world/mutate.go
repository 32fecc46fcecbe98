package world

import "errors"

var (
	// ErrBusy means the write lock was contended; the caller retries on a
	// later cycle rather than waiting.
	ErrBusy = errors.New("world busy")
	// ErrNotFound covers out-of-bounds coordinates and mutations aimed at a
	// tile that cannot serve them.
	ErrNotFound = errors.New("tile not found")
	// ErrAlreadyDepleted means the deposit existed but has been harvested to
	// zero.
	ErrAlreadyDepleted = errors.New("resource already depleted")
)

// TryCollect harvests up to max units of a consumable deposit at c. It never
// blocks: a contended lock returns ErrBusy and the caller is expected to try
// again later. Quantity never goes below zero regardless of how many
// collectors race on the same tile.
func (g *Grid) TryCollect(c Coord, max int) (int, error) {
	if !g.InBounds(c) {
		return 0, ErrNotFound
	}
	if max < 1 {
		return 0, nil
	}
	if !g.mu.TryLock() {
		return 0, ErrBusy
	}
	defer g.mu.Unlock()
	t := &g.tiles[g.index(c)]
	if !t.Resource.Kind.Consumable() {
		return 0, ErrNotFound
	}
	if t.Resource.Quantity == 0 {
		return 0, ErrAlreadyDepleted
	}
	take := max
	if take > t.Resource.Quantity {
		take = t.Resource.Quantity
	}
	t.Resource.Quantity -= take
	return take, nil
}

// MarkDiscovered flips the discovery flag at c. Marking an already-discovered
// tile is a harmless no-op.
func (g *Grid) MarkDiscovered(c Coord) error {
	if !g.InBounds(c) {
		return ErrNotFound
	}
	if !g.mu.TryLock() {
		return ErrBusy
	}
	defer g.mu.Unlock()
	g.tiles[g.index(c)].Discovered = true
	return nil
}

// Deposit adds harvested cargo to the station stockpile. Unlike tile
// mutations this waits for the lock; deposits happen once per return trip and
// must not be dropped.
func (g *Grid) Deposit(kind ResourceKind, qty int) {
	if qty < 1 || !kind.Consumable() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stock[kind] += qty
}
