package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Side is the direction of an order. The capitalized values are part of the
// wire contract and must be matched exactly on submission.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// OrderType distinguishes resting limit orders from immediately-crossing
// market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "Limit"
	OrderTypeMarket OrderType = "Market"
)

// OrderStatus is derived from fill state and cancellation. It is never set
// directly by the submitter.
type OrderStatus string

const (
	StatusOpen            OrderStatus = "Open"
	StatusPartiallyFilled OrderStatus = "PartiallyFilled"
	StatusFilled          OrderStatus = "Filled"
	StatusCancelled       OrderStatus = "Cancelled"
)

// Order is an accepted order. Identity fields are immutable after
// acceptance; RemainingAmount and Status are mutated only by the matching
// engine or an explicit cancel.
type Order struct {
	gorm.Model      `json:"-"`
	OrderID         string          `gorm:"uniqueIndex" json:"order_id"`
	UserID          string          `json:"user_id"`
	Pair            string          `gorm:"index" json:"pair"`
	Side            Side            `json:"side"`
	OrderType       OrderType       `json:"order_type"`
	Price           decimal.Decimal `gorm:"type:decimal(32,16)" json:"price"`
	Amount          decimal.Decimal `gorm:"type:decimal(32,16)" json:"amount"`
	RemainingAmount decimal.Decimal `gorm:"type:decimal(32,16)" json:"remaining_amount"`
	Status          OrderStatus     `json:"status"`
	Sequence        uint64          `gorm:"index" json:"sequence"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Filled reports whether the order has no quantity left to match.
func (o *Order) Filled() bool {
	return o.RemainingAmount.LessThanOrEqual(decimal.Zero)
}

// Trade records a single execution between two orders. Trades are created
// exactly once at match time and never mutated afterwards.
type Trade struct {
	gorm.Model  `json:"-"`
	TradeID     string          `gorm:"uniqueIndex" json:"id"`
	Pair        string          `gorm:"index" json:"pair"`
	Price       decimal.Decimal `gorm:"type:decimal(32,16)" json:"price"`
	Quantity    decimal.Decimal `gorm:"type:decimal(32,16)" json:"quantity"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	Sequence    uint64          `json:"sequence"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderRequest is the submission payload for POST /api/orders. Side and
// OrderType are kept as raw strings so validation can reject unknown
// variants (including wrong casing) with a field-level error instead of a
// bind failure. Price is a pointer so absent and zero are distinguishable.
type OrderRequest struct {
	UserID    string           `json:"user_id"`
	Pair      string           `json:"pair"`
	Side      string           `json:"side"`
	OrderType string           `json:"order_type"`
	Price     *decimal.Decimal `json:"price"`
	Amount    decimal.Decimal  `json:"amount"`
}
