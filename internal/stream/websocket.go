// Package stream serves live proof attempt events over WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/sagredo/internal/events"
	"github.com/ashureev/sagredo/internal/runner"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Attempts resolves attempt IDs the runner still tracks.
type Attempts interface {
	Status(id string) (runner.Status, error)
}

// Handler streams one attempt's events to a WebSocket client. Clients that
// reconnect pass ?after=<last event id> to receive only what they missed.
type Handler struct {
	hub           *events.Hub
	attempts      Attempts
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger
}

// NewHandler creates a new WebSocket event handler.
func NewHandler(hub *events.Hub, attempts Attempts, allowedOrigin string, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:           hub,
		attempts:      attempts,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        logger,
	}
}

// RegisterRoutes registers the event stream route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/attempts/{id}", h.ServeHTTP)
}

// ServeHTTP upgrades the connection and streams events until the attempt
// finishes or the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := h.logger.With("attempt_id", id, "ip", r.RemoteAddr)

	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			http.Error(w, "after must be a non-negative integer", http.StatusBadRequest)
			return
		}
		after = v
	}

	if _, err := h.attempts.Status(id); err != nil {
		http.Error(w, "attempt not found", http.StatusNotFound)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer ws.CloseNow()

	// Clients only listen; CloseRead handles their control frames and
	// cancels ctx when they disconnect.
	ctx := ws.CloseRead(r.Context())

	missed, live, cancel := h.hub.Subscribe(id, after)
	defer cancel()
	logger.Info("Event stream opened", "after", after, "replayed", len(missed))

	for _, msg := range missed {
		if err := writeJSON(ctx, ws, msg); err != nil {
			logger.Debug("Event replay write failed", "error", err)
			return
		}
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-live:
			if !ok {
				logger.Info("Event stream finished")
				if err := ws.Close(websocket.StatusNormalClosure, "attempt finished"); err != nil {
					logger.Debug("Failed to close websocket", "error", err)
				}
				return
			}
			if err := writeJSON(ctx, ws, msg); err != nil {
				logger.Debug("Event write failed", "error", err)
				return
			}
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Ping(pingCtx)
			pingCancel()
			if err != nil {
				logger.Debug("Event stream ping failed", "error", err)
				return
			}
		case <-ctx.Done():
			logger.Debug("Event stream closed by client")
			return
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
