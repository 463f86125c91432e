// Package transport carries bridge messages between page and host over
// websockets and MQTT.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/bridge"
	"github.com/ppiankov/geowatch/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

// WSHandler accepts page connections and feeds every text frame to a
// Router. Frames from one connection are dispatched in order.
type WSHandler struct {
	router   *bridge.Router
	log      logrus.FieldLogger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns int
}

// NewWSHandler creates a handler dispatching into router.
func NewWSHandler(router *bridge.Router, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		router: router,
		log:    logging.OrNop(log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The page is loaded from a remote origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Connections returns the number of open page connections.
func (h *WSHandler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns
}

// ServeHTTP upgrades the request and runs the read loop until the peer goes away.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("failed to upgrade bridge connection")
		return
	}

	h.mu.Lock()
	h.conns++
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.conns--
		h.mu.Unlock()
		conn.Close()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.pingLoop(ctx, conn)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	log := h.log.WithField("remote", r.RemoteAddr)
	log.Info("bridge connected")
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("bridge connection error")
			}
			log.Info("bridge disconnected")
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		// Errors are already logged by the router.
		_ = h.router.Dispatch(ctx, data)
	}
}

func (h *WSHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// WSMessenger sends messages to a host over a websocket.
type WSMessenger struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// DialWS connects to a host bridge endpoint such as ws://127.0.0.1:8765/bridge.
func DialWS(ctx context.Context, url string) (*WSMessenger, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 30 * time.Second

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to bridge (status: %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to bridge: %w", err)
	}
	return &WSMessenger{conn: conn}, nil
}

// Send writes msg as one text frame.
func (m *WSMessenger) Send(ctx context.Context, msg bridge.Message) error {
	data, err := bridge.Encode(msg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	m.conn.SetWriteDeadline(deadline)
	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("bridge write: %w", err)
	}
	return nil
}

// Close sends a close frame and closes the connection.
func (m *WSMessenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return m.conn.Close()
}
