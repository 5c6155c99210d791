package types

import "github.com/shopspring/decimal"

// OrderResponse is the body of a successful POST /api/orders call: exactly
// the accepted order's id and status.
type OrderResponse struct {
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
}

// MatchResponse is the body of a successful POST /api/match call. Trades is
// always present, empty when nothing crossed.
type MatchResponse struct {
	Trades []*Trade `json:"trades"`
}

// BookLevel is one aggregated price level of an order book snapshot: the
// price and the total resting quantity across all orders at that price.
// Per-order identity is deliberately not exposed.
type BookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// BookSnapshot is the read-only aggregated view returned by
// GET /api/orderbook/{pair}. Bids are ordered best (highest) first, asks
// best (lowest) first.
type BookSnapshot struct {
	Pair string      `json:"pair"`
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}
