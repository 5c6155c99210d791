// Package book implements the per-pair limit order book: resting orders
// indexed for best-price retrieval with price-time priority inside each
// level.
package book

import (
	"sync"

	"github.com/dexcore/matching-engine/internal/types"
)

// Book holds all resting orders for a single trading pair.
//
// The zero value is not usable; create books with New. Mutating and reading
// methods do not lock internally: callers hold the book's lock via
// Lock/Unlock, which lets the matching engine treat an entire matching pass
// as one critical section while submissions to other pairs proceed.
type Book struct {
	mu   sync.Mutex
	pair string
	bids *bookSide
	asks *bookSide
	byID map[string]*types.Order
}

// New creates an empty order book for the given pair.
func New(pair string) *Book {
	return &Book{
		pair: pair,
		bids: newBookSide(true),
		asks: newBookSide(false),
		byID: make(map[string]*types.Order),
	}
}

// Pair returns the trading pair this book belongs to.
func (b *Book) Pair() string {
	return b.pair
}

// Lock acquires exclusive access to the book for a multi-step operation.
func (b *Book) Lock() {
	b.mu.Lock()
}

// Unlock releases the book.
func (b *Book) Unlock() {
	b.mu.Unlock()
}

// Insert adds a limit order to the correct side and price level. Market
// orders are never resident and must not be inserted.
func (b *Book) Insert(o *types.Order) error {
	if o.OrderType != types.OrderTypeLimit {
		return types.NewValidationError("order_type", "only Limit orders can rest in the book")
	}

	switch o.Side {
	case types.SideBuy:
		b.bids.insert(o)
	case types.SideSell:
		b.asks.insert(o)
	default:
		return types.NewValidationError("side", "unknown order side")
	}

	b.byID[o.OrderID] = o
	return nil
}

// Remove deletes a resting order by id, returning the removed order. It
// fails with a NotFoundError when the order is not resting in this book.
func (b *Book) Remove(orderID string) (*types.Order, error) {
	o, ok := b.byID[orderID]
	if !ok {
		return nil, types.NewNotFoundError("order", orderID)
	}

	side := b.asks
	if o.Side == types.SideBuy {
		side = b.bids
	}
	if !side.remove(o) {
		// Index and side disagree; the index entry is stale.
		delete(b.byID, orderID)
		return nil, types.NewNotFoundError("order", orderID)
	}

	delete(b.byID, orderID)
	return o, nil
}

// BestBid returns the earliest-sequence order at the highest bid price, or
// nil when there are no resting bids.
func (b *Book) BestBid() *types.Order {
	lvl := b.bids.best()
	if lvl == nil {
		return nil
	}
	return lvl.orders[0]
}

// BestAsk returns the earliest-sequence order at the lowest ask price, or
// nil when there are no resting asks.
func (b *Book) BestAsk() *types.Order {
	lvl := b.asks.best()
	if lvl == nil {
		return nil
	}
	return lvl.orders[0]
}

// Crossed reports whether the best bid price meets or exceeds the best ask
// price, i.e. at least one more trade is possible.
func (b *Book) Crossed() bool {
	bid, ask := b.bids.best(), b.asks.best()
	if bid == nil || ask == nil {
		return false
	}
	return bid.price.GreaterThanOrEqual(ask.price)
}

// Depth returns the number of resting orders on each side.
func (b *Book) Depth() (bids, asks int) {
	for _, lvl := range b.bids.levels {
		bids += len(lvl.orders)
	}
	for _, lvl := range b.asks.levels {
		asks += len(lvl.orders)
	}
	return bids, asks
}

// Snapshot returns the aggregated read-only view of the book: one entry per
// price level with the summed resting quantity, best to worst on each side.
func (b *Book) Snapshot() *types.BookSnapshot {
	return &types.BookSnapshot{
		Pair: b.pair,
		Bids: b.bids.aggregate(),
		Asks: b.asks.aggregate(),
	}
}
