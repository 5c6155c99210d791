package orders

import (
	"github.com/gin-gonic/gin"

	"github.com/dexcore/matching-engine/internal/types"
	"github.com/dexcore/matching-engine/pkg/response"
)

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateOrderHandler handles POST requests to submit new orders.
// Request body carries user_id, pair, side, order_type, price and amount;
// the response is the accepted order's id and status.
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.OrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.Submit(&req)
		if err != nil {
			response.Handle(c, err)
			return
		}

		response.OK(c, types.OrderResponse{
			OrderID: order.OrderID,
			Status:  order.Status,
		})
	}
}

// GetOrderHandler handles GET requests for an order's current state.
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "order id is required")
			return
		}

		order, err := h.service.GetOrder(orderID)
		if err != nil {
			response.Handle(c, err)
			return
		}

		response.OK(c, order)
	}
}

// CancelOrderHandler handles DELETE requests that cancel a resting order.
// URL parameter: order_id
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "order id is required")
			return
		}

		order, err := h.service.Cancel(orderID)
		if err != nil {
			response.Handle(c, err)
			return
		}

		response.OK(c, types.OrderResponse{
			OrderID: order.OrderID,
			Status:  order.Status,
		})
	}
}
