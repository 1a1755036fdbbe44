// Package ws streams audit records to connected operators.
package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xordi/modguard/internal/audit"
	"github.com/xordi/modguard/internal/infrastructure/logging"
	"github.com/xordi/modguard/internal/infrastructure/monitoring"
)

// Handler streams new audit records over WebSocket connections.
type Handler struct {
	trail    *audit.Trail
	metrics  *monitoring.Metrics
	log      *logging.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a stream handler over the audit trail.
func NewHandler(trail *audit.Trail, metrics *monitoring.Metrics, log *logging.Logger) *Handler {
	return &Handler{
		trail:   trail,
		metrics: metrics,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The verifier is only reachable inside the enclave network.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Stream upgrades the connection and forwards each new audit record as a
// JSON message until the client disconnects.
func (h *Handler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	ch, cancel := h.trail.Subscribe()
	defer cancel()

	// Reader loop exists only to notice the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case rec := <-ch:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(rec); err != nil {
				h.log.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}
