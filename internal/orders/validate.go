package orders

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dexcore/matching-engine/internal/types"
)

// validateRequest performs the structural checks that gate Order creation.
// Validation never consults the book: liquidity is irrelevant at submission
// time in a batch-matching design. Enum values are matched exactly, so a
// lowercase "buy" is rejected rather than coerced.
func validateRequest(req *types.OrderRequest) error {
	if req.UserID == "" {
		return types.NewValidationError("user_id", "must not be empty")
	}

	if err := validatePair(req.Pair); err != nil {
		return err
	}

	switch types.Side(req.Side) {
	case types.SideBuy, types.SideSell:
	default:
		return types.NewValidationError("side", `must be "Buy" or "Sell"`)
	}

	switch types.OrderType(req.OrderType) {
	case types.OrderTypeLimit:
		if req.Price == nil {
			return types.NewValidationError("price", "required for Limit orders")
		}
		if req.Price.LessThanOrEqual(decimal.Zero) {
			return types.NewValidationError("price", "must be positive")
		}
	case types.OrderTypeMarket:
		if req.Price != nil {
			return types.NewValidationError("price", "must be absent for Market orders")
		}
	default:
		return types.NewValidationError("order_type", `must be "Limit" or "Market"`)
	}

	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return types.NewValidationError("amount", "must be positive")
	}

	return nil
}

// validatePair requires a base/quote symbol with exactly one separator and
// non-empty halves. Pair identity is case- and slash-sensitive.
func validatePair(pair string) error {
	if pair == "" {
		return types.NewValidationError("pair", "must not be empty")
	}

	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return types.NewValidationError("pair", "must be of the form BASE/QUOTE")
	}

	return nil
}
