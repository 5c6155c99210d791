// Package engine implements batch matching over the per-pair order books:
// orders accumulate in the book without matching until an explicit trigger
// runs a price-time-priority pass as a single atomic critical section.
package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dexcore/matching-engine/internal/book"
	"github.com/dexcore/matching-engine/internal/types"
)

// MarketPolicy decides what happens to the unfilled remainder of a market
// order: discard cancels the remainder, reject refuses the whole order
// unless it can fill completely.
type MarketPolicy string

const (
	MarketPolicyDiscard MarketPolicy = "discard"
	MarketPolicyReject  MarketPolicy = "reject"
)

// SelfTradePolicy decides whether one user may take both sides of a trade.
// Under reject the younger of the two crossing orders is cancelled.
type SelfTradePolicy string

const (
	SelfTradeAllow  SelfTradePolicy = "allow"
	SelfTradeReject SelfTradePolicy = "reject"
)

// Options carries the overridable matching policies.
type Options struct {
	MarketPolicy    MarketPolicy
	SelfTradePolicy SelfTradePolicy
}

// Service runs matching passes against the book registry and appends the
// resulting trades to the ledger.
type Service struct {
	db              *Database
	registry        *Registry
	marketPolicy    MarketPolicy
	selfTradePolicy SelfTradePolicy
	tradeSeq        atomic.Uint64
}

// NewService creates a matching service over the given registry. Unset
// policies default to discarding market remainders and allowing self-trades.
func NewService(gormDB *gorm.DB, registry *Registry, opts Options) *Service {
	if opts.MarketPolicy == "" {
		opts.MarketPolicy = MarketPolicyDiscard
	}
	if opts.SelfTradePolicy == "" {
		opts.SelfTradePolicy = SelfTradeAllow
	}

	return &Service{
		db:              NewDatabase(gormDB),
		registry:        registry,
		marketPolicy:    opts.MarketPolicy,
		selfTradePolicy: opts.SelfTradePolicy,
	}
}

// Registry returns the book registry the service matches against.
func (s *Service) Registry() *Registry {
	return s.registry
}

// MatchAll runs one matching pass over every pair with a book and returns
// the flattened list of trades. Pairs are matched independently; a pair with
// no crossing orders contributes nothing.
func (s *Service) MatchAll() ([]*types.Trade, error) {
	trades := make([]*types.Trade, 0)
	for _, pair := range s.registry.Pairs() {
		pairTrades, err := s.MatchPair(pair)
		if err != nil {
			return nil, err
		}
		trades = append(trades, pairTrades...)
	}
	return trades, nil
}

// MatchPair runs one matching pass for a single pair. A pair that has never
// seen an order yields zero trades, not an error.
func (s *Service) MatchPair(pair string) ([]*types.Trade, error) {
	b, ok := s.registry.Get(pair)
	if !ok {
		return make([]*types.Trade, 0), nil
	}
	return s.matchBook(b)
}

// matchBook executes the batch matching algorithm against one book while
// holding its lock for the whole pass. Repeats until no cross remains:
// best bid vs best ask, earliest sequence at each level, execution at the
// maker's (lower sequence) price, quantity capped by both remainders.
func (s *Service) matchBook(b *book.Book) ([]*types.Trade, error) {
	b.Lock()
	defer b.Unlock()

	logger := log.With().
		Str("component", "matching_engine").
		Str("pair", b.Pair()).
		Logger()

	journal := &passJournal{}
	trades := make([]*types.Trade, 0)
	touched := make(map[string]*types.Order)

	for {
		bid, ask := b.BestBid(), b.BestAsk()
		if bid == nil || ask == nil || bid.Price.LessThan(ask.Price) {
			break
		}

		if bid.UserID == ask.UserID && s.selfTradePolicy == SelfTradeReject {
			younger := bid
			if ask.Sequence > bid.Sequence {
				younger = ask
			}
			s.cancel(b, journal, younger)
			touched[younger.OrderID] = younger
			logger.Debug().
				Str("order_id", younger.OrderID).
				Str("user_id", younger.UserID).
				Msg("cancelled younger order of a self-cross")
			continue
		}

		// The order resting first at the crossing price sets the execution
		// price.
		maker := bid
		if ask.Sequence < bid.Sequence {
			maker = ask
		}
		price := maker.Price

		quantity := decimal.Min(bid.RemainingAmount, ask.RemainingAmount)
		if quantity.LessThanOrEqual(decimal.Zero) {
			journal.rollback(b)
			return nil, &types.InternalFault{
				Op:  "match",
				Err: fmt.Errorf("non-positive match quantity between %s and %s", bid.OrderID, ask.OrderID),
			}
		}

		s.fill(b, journal, bid, quantity)
		s.fill(b, journal, ask, quantity)
		touched[bid.OrderID] = bid
		touched[ask.OrderID] = ask

		trade := s.newTrade(b.Pair(), price, quantity, bid, ask)
		trades = append(trades, trade)

		logger.Debug().
			Str("trade_id", trade.TradeID).
			Str("price", trade.Price.String()).
			Str("quantity", trade.Quantity.String()).
			Str("buy_order_id", trade.BuyOrderID).
			Str("sell_order_id", trade.SellOrderID).
			Msg("orders matched")
	}

	if err := s.commit(b, journal, trades, touched); err != nil {
		return nil, err
	}

	if len(trades) > 0 {
		logger.Info().
			Int("trades", len(trades)).
			Msg("matching pass completed")
	}

	return trades, nil
}

// ExecuteMarket crosses a market order against the book immediately. Market
// orders are never resident: whatever cannot fill is handled by the market
// policy. The accepted order and its trades are persisted in one
// transaction, so a rejected order leaves no record.
func (s *Service) ExecuteMarket(o *types.Order) ([]*types.Trade, error) {
	b := s.registry.GetOrCreate(o.Pair)

	b.Lock()
	defer b.Unlock()

	journal := &passJournal{}
	trades := make([]*types.Trade, 0)
	touched := map[string]*types.Order{o.OrderID: o}

	for !o.Filled() {
		var resting *types.Order
		if o.Side == types.SideBuy {
			resting = b.BestAsk()
		} else {
			resting = b.BestBid()
		}
		if resting == nil {
			break
		}

		// A market order is always the younger side of a self-cross, so
		// under reject its remainder is the part that gets cancelled.
		if resting.UserID == o.UserID && s.selfTradePolicy == SelfTradeReject {
			break
		}

		quantity := decimal.Min(o.RemainingAmount, resting.RemainingAmount)
		s.fill(b, journal, o, quantity)
		s.fill(b, journal, resting, quantity)
		touched[resting.OrderID] = resting

		bid, ask := o, resting
		if o.Side == types.SideSell {
			bid, ask = resting, o
		}
		trades = append(trades, s.newTrade(b.Pair(), resting.Price, quantity, bid, ask))
	}

	if !o.Filled() {
		if s.marketPolicy == MarketPolicyReject {
			journal.rollback(b)
			return nil, types.NewValidationError("amount", "insufficient liquidity to fill market order")
		}
		// Discard the remainder; the order never rests.
		if len(trades) == 0 {
			o.Status = types.StatusCancelled
		} else {
			o.Status = types.StatusPartiallyFilled
		}
	}

	if err := s.commit(b, journal, trades, touched); err != nil {
		return nil, err
	}

	return trades, nil
}

// fill decrements an order's remaining amount, updates its status, and
// removes it from the book once exhausted. Every mutation is journaled
// first.
func (s *Service) fill(b *book.Book, journal *passJournal, o *types.Order, quantity decimal.Decimal) {
	journal.mutated(o)
	o.RemainingAmount = o.RemainingAmount.Sub(quantity)
	o.UpdatedAt = time.Now()

	if o.Filled() {
		o.Status = types.StatusFilled
		if _, err := b.Remove(o.OrderID); err == nil {
			journal.removed(o)
		}
	} else {
		o.Status = types.StatusPartiallyFilled
	}
}

// cancel removes a resting order from the book and marks it cancelled.
func (s *Service) cancel(b *book.Book, journal *passJournal, o *types.Order) {
	journal.mutated(o)
	if _, err := b.Remove(o.OrderID); err == nil {
		journal.removed(o)
	}
	o.Status = types.StatusCancelled
	o.UpdatedAt = time.Now()
}

// commit persists the pass results. On failure the book is rolled back to
// its pre-pass state and the caller sees an InternalFault instead of a
// partial trade list.
func (s *Service) commit(b *book.Book, journal *passJournal, trades []*types.Trade, touched map[string]*types.Order) error {
	if len(touched) == 0 {
		return nil
	}

	orders := make([]*types.Order, 0, len(touched))
	for _, o := range touched {
		orders = append(orders, o)
	}

	if err := s.db.SavePass(trades, orders); err != nil {
		journal.rollback(b)
		return &types.InternalFault{Op: "persist matching pass", Err: err}
	}
	return nil
}

// newTrade builds the immutable execution record for one match step.
func (s *Service) newTrade(pair string, price, quantity decimal.Decimal, buy, sell *types.Order) *types.Trade {
	return &types.Trade{
		TradeID:     uuid.New().String(),
		Pair:        pair,
		Price:       price,
		Quantity:    quantity,
		BuyerID:     buy.UserID,
		SellerID:    sell.UserID,
		BuyOrderID:  buy.OrderID,
		SellOrderID: sell.OrderID,
		Sequence:    s.tradeSeq.Add(1),
		CreatedAt:   time.Now(),
	}
}

// Snapshot returns the aggregated order book view for a pair. Unknown pairs
// report NotFound.
func (s *Service) Snapshot(pair string) (*types.BookSnapshot, error) {
	b, ok := s.registry.Get(pair)
	if !ok {
		return nil, types.NewNotFoundError("pair", pair)
	}

	b.Lock()
	defer b.Unlock()
	return b.Snapshot(), nil
}

// Trades returns the ledger's trades for a pair, oldest first.
func (s *Service) Trades(pair string) ([]types.Trade, error) {
	return s.db.GetTradesByPair(pair)
}
