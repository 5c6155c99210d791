package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newLimitedRouter() *gin.Engine {
	router := gin.New()
	router.UseRawPath = true
	router.Use(RateLimit())
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	router.POST("/api/orders", ok)
	router.GET("/api/orderbook/:pair", ok)
	return router
}

func do(router *gin.Engine, method, path, remoteAddr string) int {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestSubmitBurstLimit(t *testing.T) {
	router := newLimitedRouter()

	// A burst of five submissions passes; the sixth immediate one is
	// throttled. Clients flooding faster than the refill rate must pace
	// themselves.
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/orders", "10.1.1.1:1234"))
	}
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/api/orders", "10.1.1.1:1234"))

	// A different client is unaffected.
	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/orders", "10.1.1.2:1234"))
}

func TestQueryLimitIsSeparate(t *testing.T) {
	router := newLimitedRouter()

	for i := 0; i < 6; i++ {
		do(router, http.MethodPost, "/api/orders", "10.1.2.1:1234")
	}

	// Exhausting the submission budget does not affect book queries from the
	// same client.
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/orderbook/BTC%2FUSDT", "10.1.2.1:1234"))
}
