package stream

import (
	"sync"

	"github.com/google/uuid"

	"github.com/openderiv/ledgerx-data/model"
)

// Cache holds the last known value per key for each account/market data
// channel. Writes come only from the inbound-frame path; reads may happen
// concurrently from any goroutine. Entries are monotonic by timestamp: a
// stale out-of-order frame never overwrites a newer cached value.
type Cache struct {
	mu        sync.RWMutex
	tops      map[int64]model.BookTop
	balances  map[string]model.Balance
	positions map[int64]model.Position
	fills     map[uuid.UUID]model.Fill
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		tops:      make(map[int64]model.BookTop),
		balances:  make(map[string]model.Balance),
		positions: make(map[int64]model.Position),
		fills:     make(map[uuid.UUID]model.Fill),
	}
}

// Apply updates the cache from a decoded event. Reports whether any entry
// changed; stale frames are rejected per key.
func (c *Cache) Apply(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	applied := false
	switch ev.Kind {
	case KindBookTop:
		if prev, ok := c.tops[ev.BookTop.ContractID]; !ok || ev.BookTop.Timestamp >= prev.Timestamp {
			c.tops[ev.BookTop.ContractID] = *ev.BookTop
			applied = true
		}

	case KindBalance:
		for _, b := range ev.Balances {
			if prev, ok := c.balances[b.Asset]; !ok || b.Timestamp >= prev.Timestamp {
				c.balances[b.Asset] = b
				applied = true
			}
		}

	case KindPosition:
		for _, p := range ev.Positions {
			if prev, ok := c.positions[p.ContractID]; !ok || p.Timestamp >= prev.Timestamp {
				c.positions[p.ContractID] = p
				applied = true
			}
		}

	case KindFill:
		if prev, ok := c.fills[ev.Fill.MID]; !ok || ev.Fill.Timestamp >= prev.Timestamp {
			c.fills[ev.Fill.MID] = *ev.Fill
			applied = true
		}
	}
	return applied
}

// Top returns the last known book top for a contract. ok is false before
// the first update arrives; the call never blocks or touches the network.
func (c *Cache) Top(contractID int64) (model.BookTop, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	top, ok := c.tops[contractID]
	return top, ok
}

// Balance returns the last known balance for an asset.
func (c *Cache) Balance(asset string) (model.Balance, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.balances[asset]
	return b, ok
}

// Position returns the last known position for a contract.
func (c *Cache) Position(contractID int64) (model.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.positions[contractID]
	return p, ok
}

// Fill returns the last known fill state for an order mid.
func (c *Cache) Fill(mid uuid.UUID) (model.Fill, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.fills[mid]
	return f, ok
}
