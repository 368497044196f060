// Package book owns the set of open positions. All mutations are
// serialized under one lock per book instance.
package book

import (
	"sort"
	"sync"

	"main/internal/model"
)

// QuoteSource supplies the latest quote for a symbol.
type QuoteSource interface {
	Latest(symbol string) (model.Quote, bool)
}

// Book stores open positions keyed by position id.
type Book struct {
	mu        sync.Mutex
	positions map[string]model.Position
}

// New creates an empty position book.
func New() *Book {
	return &Book{positions: make(map[string]model.Position)}
}

// Add stores an open position.
func (b *Book) Add(p model.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[p.ID] = p
}

// Get returns the position with the given id.
func (b *Book) Get(id string) (model.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[id]
	return p, ok
}

// Close removes the position with the given id and returns it.
func (b *Book) Close(id string) (model.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[id]
	if !ok {
		return model.Position{}, false
	}
	delete(b.positions, id)
	return p, true
}

// Len returns the number of open positions.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.positions)
}

// List returns a point-in-time snapshot of open positions, ordered by id
// for deterministic iteration.
func (b *Book) List() []model.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RefreshPrices recomputes current price and unrealized P&L for every
// open position from the latest quotes. Positions whose symbol has no
// quote keep their last values, stale but not corrupted.
func (b *Book) RefreshPrices(src QuoteSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, p := range b.positions {
		quote, ok := src.Latest(p.Symbol)
		if !ok {
			continue
		}
		p.CurrentPrice = quote.Price
		p.UnrealizedPnL = (p.CurrentPrice - p.EntryPrice) * p.Quantity
		b.positions[id] = p
	}
}

// TotalExposure returns the summed absolute notional of open positions.
func (b *Book) TotalExposure() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0.0
	for _, p := range b.positions {
		total += p.Notional()
	}
	return total
}

// TotalUnrealized returns the summed unrealized P&L of open positions.
func (b *Book) TotalUnrealized() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0.0
	for _, p := range b.positions {
		total += p.UnrealizedPnL
	}
	return total
}

// Drain removes and returns every open position.
func (b *Book) Drain() []model.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	b.positions = make(map[string]model.Position)
	return out
}
