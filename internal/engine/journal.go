package engine

import (
	"github.com/shopspring/decimal"

	"github.com/dexcore/matching-engine/internal/book"
	"github.com/dexcore/matching-engine/internal/types"
)

// passJournal records every book mutation made during a matching pass so the
// pass can be undone if it cannot complete. A pass is all-or-nothing: either
// every step applies or the book is restored to its pre-pass state.
type passJournal struct {
	entries []journalEntry
}

type journalEntry struct {
	order     *types.Order
	remaining decimal.Decimal
	status    types.OrderStatus
	removed   bool
}

// mutated snapshots an order's fill state before it is changed.
func (j *passJournal) mutated(o *types.Order) {
	j.entries = append(j.entries, journalEntry{
		order:     o,
		remaining: o.RemainingAmount,
		status:    o.Status,
	})
}

// removed records that an order was deleted from the book.
func (j *passJournal) removed(o *types.Order) {
	j.entries = append(j.entries, journalEntry{order: o, removed: true})
}

// rollback undoes the journal in reverse: removed orders are re-inserted and
// mutated orders have their fill state restored. Replaying in reverse means
// the oldest snapshot of each order is applied last, leaving the original
// values in place.
func (j *passJournal) rollback(b *book.Book) {
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		if e.removed {
			// Re-insertion cannot fail for orders that were resting.
			_ = b.Insert(e.order)
			continue
		}
		e.order.RemainingAmount = e.remaining
		e.order.Status = e.status
	}
	j.entries = nil
}
