// Package stream pushes periodic aggregated order book snapshots to
// websocket subscribers.
package stream

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dexcore/matching-engine/internal/engine"
	"github.com/dexcore/matching-engine/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope for every frame on the snapshot stream.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// subscribePayload is the client's subscription request.
type subscribePayload struct {
	Pair string `json:"pair"`
}

// Handler serves the websocket snapshot stream.
type Handler struct {
	service  *engine.Service
	interval time.Duration
}

// NewHandler creates a stream handler pushing snapshots at the given
// interval.
func NewHandler(service *engine.Service, interval time.Duration) *Handler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Handler{
		service:  service,
		interval: interval,
	}
}

// Serve upgrades the connection and streams snapshots of the subscribed
// pair until the client disconnects. Clients subscribe with
// {"type":"subscribe","payload":{"pair":"BTC/USDT"}}.
func (h *Handler) Serve() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		logger := log.With().
			Str("component", "snapshot_stream").
			Str("remote", conn.RemoteAddr().String()).
			Logger()

		var (
			mu      sync.Mutex
			pair    string
			writeMu sync.Mutex
		)

		// The connection allows only one writer at a time; the reader's acks
		// and the ticker's snapshots share it.
		write := func(msg Message) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteJSON(msg)
		}

		go func() {
			for {
				var msg struct {
					Type    string           `json:"type"`
					Payload subscribePayload `json:"payload"`
				}
				if err := conn.ReadJSON(&msg); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						logger.Warn().Err(err).Msg("websocket read error")
					}
					return
				}

				var ack Message
				switch msg.Type {
				case "subscribe":
					mu.Lock()
					pair = msg.Payload.Pair
					mu.Unlock()
					ack = Message{Type: "subscribed", Payload: subscribePayload{Pair: msg.Payload.Pair}}
				case "unsubscribe":
					mu.Lock()
					pair = ""
					mu.Unlock()
					ack = Message{Type: "unsubscribed"}
				default:
					ack = Message{Type: "error", Payload: "unknown message type"}
				}

				if err := write(ack); err != nil {
					logger.Debug().Err(err).Msg("client ack write failed, closing stream")
					return
				}
			}
		}()

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				mu.Lock()
				subscribed := pair
				mu.Unlock()
				if subscribed == "" {
					continue
				}

				snapshot, err := h.service.Snapshot(subscribed)
				if err != nil {
					var notFound *types.NotFoundError
					if errors.As(err, &notFound) {
						// No orders for the pair yet; send an empty book.
						snapshot = &types.BookSnapshot{
							Pair: subscribed,
							Bids: []types.BookLevel{},
							Asks: []types.BookLevel{},
						}
					} else {
						logger.Error().Err(err).Str("pair", subscribed).Msg("snapshot failed")
						continue
					}
				}

				if err := write(Message{Type: "snapshot", Payload: snapshot}); err != nil {
					logger.Debug().Err(err).Msg("client write failed, closing stream")
					return
				}

			case <-c.Request.Context().Done():
				logger.Debug().Msg("client disconnected")
				return
			}
		}
	}
}
