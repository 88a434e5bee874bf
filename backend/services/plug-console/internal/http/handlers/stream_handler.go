package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"smartplug/backend/services/plug-console/internal/console"
)

const (
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

// StreamHandler pushes console views to the browser over a WebSocket.
type StreamHandler struct {
	consoles     *console.Manager
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	logger       *zap.Logger
}

// NewStreamHandler builds the GET /api/console/stream handler.
func NewStreamHandler(consoles *console.Manager, writeTimeout time.Duration, logger *zap.Logger) *StreamHandler {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &StreamHandler{
		consoles:     consoles,
		writeTimeout: writeTimeout,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP upgrades the request and streams until either side goes away.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	views, unsubscribe := h.consoles.For(userID).Subscribe()
	defer unsubscribe()

	gone := make(chan struct{})
	go h.readLoop(conn, gone)

	h.logger.Debug("console stream opened", zap.Int64("user_id", userID))
	defer h.logger.Debug("console stream closed", zap.Int64("user_id", userID))

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case view, ok := <-views:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(view); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so control messages are processed; the stream is
// one-way, commands go through the REST endpoints.
func (h *StreamHandler) readLoop(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
