// Package orders accepts, validates and cancels orders. Accepted limit
// orders rest in their pair's book untouched until a matching pass; market
// orders cross immediately and never rest.
package orders

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dexcore/matching-engine/internal/engine"
	"github.com/dexcore/matching-engine/internal/types"
)

// Service handles order intake and lifecycle operations.
type Service struct {
	db     *Database
	engine *engine.Service
	seq    atomic.Uint64
}

// NewService creates an order service backed by the given matching service's
// registry.
func NewService(gormDB *gorm.DB, engineService *engine.Service) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		engine: engineService,
	}
}

// Submit validates a request and, on acceptance, creates the Order. Limit
// orders are inserted into the pair's book; market orders execute against
// the opposite side immediately. Rejected submissions create nothing.
func (s *Service) Submit(req *types.OrderRequest) (*types.Order, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	order := s.newOrder(req)

	logger := log.With().
		Str("order_id", order.OrderID).
		Str("user_id", order.UserID).
		Str("pair", order.Pair).
		Str("side", string(order.Side)).
		Str("order_type", string(order.OrderType)).
		Str("amount", order.Amount.String()).
		Logger()

	if order.OrderType == types.OrderTypeMarket {
		trades, err := s.engine.ExecuteMarket(order)
		if err != nil {
			logger.Warn().Err(err).Msg("market order rejected")
			return nil, err
		}
		logger.Info().
			Int("trades", len(trades)).
			Str("status", string(order.Status)).
			Msg("market order executed")
		return order, nil
	}

	if err := s.db.CreateOrder(order); err != nil {
		logger.Error().Err(err).Msg("failed to persist order")
		return nil, err
	}

	b := s.engine.Registry().GetOrCreate(order.Pair)
	b.Lock()
	err := b.Insert(order)
	b.Unlock()
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("price", order.Price.String()).
		Uint64("sequence", order.Sequence).
		Msg("order accepted")

	return order, nil
}

// newOrder builds the accepted Order: identity assigned, remaining amount
// initialized, and a sequence number taken from the shared counter so
// acceptance order is the authoritative time-priority key.
func (s *Service) newOrder(req *types.OrderRequest) *types.Order {
	price := decimal.Zero
	if req.Price != nil {
		price = *req.Price
	}

	now := time.Now()
	return &types.Order{
		OrderID:         uuid.New().String(),
		UserID:          req.UserID,
		Pair:            req.Pair,
		Side:            types.Side(req.Side),
		OrderType:       types.OrderType(req.OrderType),
		Price:           price,
		Amount:          req.Amount,
		RemainingAmount: req.Amount,
		Status:          types.StatusOpen,
		Sequence:        s.seq.Add(1),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// GetOrder retrieves an order's current state by id.
func (s *Service) GetOrder(orderID string) (*types.Order, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, types.NewNotFoundError("order", orderID)
	}
	return order, nil
}

// Cancel removes a resting order from its book and marks it cancelled.
// Orders that are unknown, already filled, or already cancelled report
// NotFound.
func (s *Service) Cancel(orderID string) (*types.Order, error) {
	record, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, types.NewNotFoundError("order", orderID)
	}

	b, ok := s.engine.Registry().Get(record.Pair)
	if !ok {
		return nil, types.NewNotFoundError("order", orderID)
	}

	b.Lock()
	order, err := b.Remove(orderID)
	if err != nil {
		b.Unlock()
		return nil, err
	}
	order.Status = types.StatusCancelled
	order.UpdatedAt = time.Now()
	b.Unlock()

	if err := s.db.UpdateOrder(order); err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", order.OrderID).
		Str("pair", order.Pair).
		Str("remaining_amount", order.RemainingAmount.String()).
		Msg("order cancelled")

	return order, nil
}
