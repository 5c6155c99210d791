package engine

import (
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dexcore/matching-engine/internal/types"
	"github.com/dexcore/matching-engine/pkg/response"
)

// GinHandlers contains HTTP handlers for matching and book queries
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates handlers for the match, order book and trade
// endpoints.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// matchRequest is the optional body of POST /api/match. With no body (or no
// pair) all pairs are matched.
type matchRequest struct {
	Pair string `json:"pair"`
}

// MatchHandler handles POST requests that trigger a batch matching pass.
// Responds with the flattened list of executed trades.
func (h *GinHandlers) MatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req matchRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				response.BadRequest(c, err.Error())
				return
			}
		}

		var (
			trades []*types.Trade
			err    error
		)
		if req.Pair != "" {
			trades, err = h.service.MatchPair(req.Pair)
		} else {
			trades, err = h.service.MatchAll()
		}
		if err != nil {
			log.Error().Err(err).Str("pair", req.Pair).Msg("matching pass failed")
			response.Handle(c, err)
			return
		}

		response.OK(c, types.MatchResponse{Trades: trades})
	}
}

// OrderBookHandler handles GET requests for the aggregated book snapshot.
// URL parameter: pair, URL-encoded (BTC%2FUSDT for BTC/USDT).
func (h *GinHandlers) OrderBookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pair, err := url.PathUnescape(c.Param("pair"))
		if err != nil || pair == "" {
			response.BadRequest(c, "invalid pair")
			return
		}

		snapshot, err := h.service.Snapshot(pair)
		if err != nil {
			response.Handle(c, err)
			return
		}

		response.OK(c, snapshot)
	}
}

// TradesHandler handles GET requests for the trade ledger of one pair.
// Query parameter: pair.
func (h *GinHandlers) TradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pair := c.Query("pair")
		if pair == "" {
			response.BadRequest(c, "pair query parameter is required")
			return
		}

		trades, err := h.service.Trades(pair)
		if err != nil {
			response.Handle(c, err)
			return
		}

		response.OK(c, gin.H{"pair": pair, "trades": trades})
	}
}
