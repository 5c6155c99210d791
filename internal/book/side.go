package book

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dexcore/matching-engine/internal/types"
)

// priceLevel holds all resting orders at one price, ordered ascending by
// sequence (earliest acceptance first).
type priceLevel struct {
	price  decimal.Decimal
	orders []*types.Order
}

// totalQuantity sums the remaining amounts at this level.
func (l *priceLevel) totalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.orders {
		total = total.Add(o.RemainingAmount)
	}
	return total
}

// enqueue inserts an order keeping the level sorted by sequence. Submissions
// race between sequence assignment and book insertion, so a tail append is
// not enough to preserve time priority.
func (l *priceLevel) enqueue(o *types.Order) {
	idx := sort.Search(len(l.orders), func(i int) bool {
		return l.orders[i].Sequence > o.Sequence
	})
	l.orders = append(l.orders, nil)
	copy(l.orders[idx+1:], l.orders[idx:])
	l.orders[idx] = o
}

// remove deletes the order with the given id from the level, returning false
// if it is not present.
func (l *priceLevel) remove(orderID string) bool {
	for i, o := range l.orders {
		if o.OrderID == orderID {
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			return true
		}
	}
	return false
}

// bookSide is one side of the book: price levels kept sorted best-first.
// Bids sort descending by price, asks ascending.
type bookSide struct {
	levels     []*priceLevel
	descending bool
}

func newBookSide(descending bool) *bookSide {
	return &bookSide{descending: descending}
}

// search returns the index at which price sorts into the level slice.
func (s *bookSide) search(price decimal.Decimal) int {
	return sort.Search(len(s.levels), func(i int) bool {
		cmp := s.levels[i].price.Cmp(price)
		if s.descending {
			return cmp <= 0
		}
		return cmp >= 0
	})
}

// insert places an order at its price level, creating the level if needed.
func (s *bookSide) insert(o *types.Order) {
	idx := s.search(o.Price)
	if idx < len(s.levels) && s.levels[idx].price.Equal(o.Price) {
		s.levels[idx].enqueue(o)
		return
	}

	lvl := &priceLevel{price: o.Price, orders: []*types.Order{o}}
	s.levels = append(s.levels, nil)
	copy(s.levels[idx+1:], s.levels[idx:])
	s.levels[idx] = lvl
}

// remove deletes the order from its price level, dropping the level once it
// is empty. Returns false if the order is not on this side.
func (s *bookSide) remove(o *types.Order) bool {
	idx := s.search(o.Price)
	if idx >= len(s.levels) || !s.levels[idx].price.Equal(o.Price) {
		return false
	}

	lvl := s.levels[idx]
	if !lvl.remove(o.OrderID) {
		return false
	}
	if len(lvl.orders) == 0 {
		s.levels = append(s.levels[:idx], s.levels[idx+1:]...)
	}
	return true
}

// best returns the top-of-book level, or nil when the side is empty.
func (s *bookSide) best() *priceLevel {
	if len(s.levels) == 0 {
		return nil
	}
	return s.levels[0]
}

// aggregate builds the per-level read-only view, best to worst.
func (s *bookSide) aggregate() []types.BookLevel {
	out := make([]types.BookLevel, 0, len(s.levels))
	for _, lvl := range s.levels {
		out = append(out, types.BookLevel{
			Price:    lvl.price,
			Quantity: lvl.totalQuantity(),
		})
	}
	return out
}
