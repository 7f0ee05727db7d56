// Package ws accepts streaming sessions over WebSocket and tracks open
// connections so they can be closed on shutdown.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"profanity-stream-service/internal/auth"
	"profanity-stream-service/internal/observability/logging"
	"profanity-stream-service/internal/service/session"
)

// ErrShuttingDown is returned by Shutdown when called twice.
var ErrShuttingDown = errors.New("websocket handler is shutting down")

// SessionServer runs one session on an upgraded connection.
type SessionServer interface {
	Serve(ctx context.Context, conn session.Conn, userID string) error
}

// Config holds WebSocket transport limits.
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
	// MaxMessageBytes caps a single inbound frame. Zero means no limit.
	MaxMessageBytes int64
}

// DefaultConfig allows frames up to 1 MiB (about 32 s of 16 kHz audio).
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  16 * 1024,
		WriteBufferSize: 4 * 1024,
		MaxMessageBytes: 1 << 20,
	}
}

// Handler upgrades requests and hands each connection to a SessionServer
// on the request goroutine.
type Handler struct {
	upgrader websocket.Upgrader
	sessions SessionServer
	cfg      Config
	logger   zerolog.Logger

	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewHandler creates a Handler.
func NewHandler(sessions SessionServer, cfg Config) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // Browser clients are served from other origins
			},
		},
		sessions: sessions,
		cfg:      cfg,
		logger:   logging.WithComponent("websocket"),
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := auth.IdentityFromRequest(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remoteAddr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}
	if !h.track(conn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer h.untrack(conn)

	// Sessions end when their connection closes, not with the request.
	_ = h.sessions.Serve(context.WithoutCancel(r.Context()), conn, userID)
}

// Active returns the number of open connections.
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown refuses new connections, sends a going-away close frame to every
// open one, closes them and waits for their sessions to return.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return ErrShuttingDown
	}
	h.closing = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.logger.Info().Int("connections", len(conns)).Msg("Closing WebSocket sessions")
	deadline := time.Now().Add(time.Second)
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) track(c *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Handler) untrack(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	h.wg.Done()
}
