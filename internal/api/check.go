package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ashureev/sagredo/internal/checker"
)

// CheckRequest is a snippet submitted straight to the checker.
type CheckRequest struct {
	Code     string `json:"code"`
	Preamble string `json:"preamble,omitempty"`
}

// CheckResponse is the checker's verdict on a snippet.
type CheckResponse struct {
	Clean    bool              `json:"clean"`
	Errors   bool              `json:"errors"`
	Messages []checker.Message `json:"messages"`
	Sorries  []checker.Sorry   `json:"sorries"`
}

// Check runs code through a fresh checker session without involving the oracle.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	if h.starter == nil {
		Error(w, http.StatusServiceUnavailable, "checker not configured")
		return
	}
	var req CheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		Error(w, http.StatusBadRequest, "code is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
	defer cancel()

	fb, err := checker.Check(ctx, h.starter, req.Preamble, req.Code)
	if fb == nil {
		switch {
		case errors.Is(err, checker.ErrCheckerTimeout):
			Error(w, http.StatusGatewayTimeout, "checker timed out")
		default:
			h.logger.Error("Checker unavailable", "error", err)
			Error(w, http.StatusServiceUnavailable, "checker unavailable")
		}
		return
	}
	if err != nil {
		h.logger.Warn("Checker session did not close cleanly", "error", err)
	}

	resp := CheckResponse{
		Clean:    fb.Clean(),
		Errors:   fb.HasErrors(),
		Messages: fb.Messages,
		Sorries:  fb.Sorries,
	}
	if resp.Messages == nil {
		resp.Messages = []checker.Message{}
	}
	if resp.Sorries == nil {
		resp.Sorries = []checker.Sorry{}
	}
	JSON(w, http.StatusOK, resp)
}
