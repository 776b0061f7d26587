package tracking

import (
	"sort"
	"sync"
)

// Board keeps the latest position of every bus seen on the feed.
type Board struct {
	mu    sync.RWMutex
	buses map[string]Position
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{buses: make(map[string]Position)}
}

// Apply merges p into the board. Coordinates always replace the previous
// ones; optional fields only when present.
func (b *Board) Apply(p Position) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, ok := b.buses[p.BusID]
	if !ok {
		b.buses[p.BusID] = p
		return
	}
	prev.Latitude = p.Latitude
	prev.Longitude = p.Longitude
	prev.ReceivedAt = p.ReceivedAt
	if p.Speed != nil {
		prev.Speed = p.Speed
	}
	if p.Heading != nil {
		prev.Heading = p.Heading
	}
	if p.Status != "" {
		prev.Status = p.Status
	}
	b.buses[p.BusID] = prev
}

// Snapshot returns all positions ordered by bus id.
func (b *Board) Snapshot() []Position {
	b.mu.RLock()
	out := make([]Position, 0, len(b.buses))
	for _, p := range b.buses {
		out = append(out, p)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].BusID < out[j].BusID })
	return out
}

// Len is the number of buses on the board.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.buses)
}

// Reset empties the board.
func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buses = make(map[string]Position)
}
