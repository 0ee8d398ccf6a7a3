package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/sagredo/internal/domain"
	"github.com/ashureev/sagredo/internal/runner"
	"github.com/ashureev/sagredo/internal/store"
)

// RegisterRoutes registers attempt and checker routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/attempts", h.StartAttempt)
		r.Get("/attempts", h.ListAttempts)
		r.Get("/attempts/{id}", h.GetAttempt)
		r.Post("/attempts/{id}/cancel", h.CancelAttempt)
		r.Post("/check", h.Check)
	})
}

// StartAttempt launches a proof attempt in the background.
func (h *Handler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	var task domain.ProofTask
	if err := decodeJSON(w, r, &task); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := task.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.attempts.Start(h.baseCtx, task)
	if err != nil {
		h.logger.Error("Failed to start attempt", "error", err, "name", task.Name)
		Error(w, http.StatusInternalServerError, "failed to start attempt")
		return
	}

	w.Header().Set("Location", "/api/attempts/"+id)
	JSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// ListAttempts returns running attempts and archived summaries.
func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	filter := store.ListFilter{State: strings.TrimSpace(r.URL.Query().Get("state"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	var active []runner.Status
	for _, st := range h.attempts.Active() {
		if st.Running {
			st.Record = nil
			active = append(active, st)
		}
	}

	resp := map[string]any{"active": active}
	if h.repo != nil {
		archived, err := h.repo.ListAttempts(r.Context(), filter)
		if err != nil {
			h.logger.Error("Failed to list attempts", "error", err)
			Error(w, http.StatusInternalServerError, "failed to list attempts")
			return
		}
		resp["archived"] = archived
	}
	JSON(w, http.StatusOK, resp)
}

// GetAttempt returns a live attempt's status or an archived record.
func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if st, err := h.attempts.Status(id); err == nil {
		JSON(w, http.StatusOK, st)
		return
	}

	if h.repo == nil {
		Error(w, http.StatusNotFound, "attempt not found")
		return
	}
	rec, err := h.repo.GetAttempt(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "attempt not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load attempt", "error", err, "attempt_id", id)
		Error(w, http.StatusInternalServerError, "failed to load attempt")
		return
	}
	JSON(w, http.StatusOK, runner.Status{
		ID:        rec.ID,
		Name:      rec.Name,
		State:     rec.State,
		Step:      rec.Steps,
		StartedAt: rec.StartedAt,
		Record:    rec,
	})
}

// CancelAttempt requests cancellation of a running attempt.
func (h *Handler) CancelAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.attempts.Cancel(id); err != nil {
		if errors.Is(err, runner.ErrUnknownAttempt) {
			Error(w, http.StatusNotFound, "attempt not found")
			return
		}
		Error(w, http.StatusInternalServerError, "failed to cancel attempt")
		return
	}
	JSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}
