// Package api provides HTTP handlers for the prover API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/sagredo/internal/checker"
	"github.com/ashureev/sagredo/internal/domain"
	"github.com/ashureev/sagredo/internal/runner"
	"github.com/ashureev/sagredo/internal/store"
)

const maxBodyBytes = 1 << 20

// Attempts is the part of the runner the API drives.
type Attempts interface {
	Start(ctx context.Context, task domain.ProofTask) (string, error)
	Cancel(id string) error
	Status(id string) (runner.Status, error)
	Active() []runner.Status
}

var _ Attempts = (*runner.Runner)(nil)

// Handler provides common handler utilities.
type Handler struct {
	attempts Attempts
	// repo is nil when the archive is disabled.
	repo         store.Repository
	starter      checker.Starter
	checkTimeout time.Duration
	// baseCtx outlives requests; background attempts run under it.
	baseCtx context.Context
	logger  *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(baseCtx context.Context, attempts Attempts, repo store.Repository, starter checker.Starter, checkTimeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if checkTimeout <= 0 {
		checkTimeout = 2 * time.Minute
	}
	return &Handler{
		attempts:     attempts,
		repo:         repo,
		starter:      starter,
		checkTimeout: checkTimeout,
		baseCtx:      baseCtx,
		logger:       logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
