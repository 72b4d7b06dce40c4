// Package handlers provides HTTP handlers for portfolio performance.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/modules/performance"
)

// Summarizer builds portfolio performance summaries.
type Summarizer interface {
	Summarize(ctx context.Context, portfolioID, userID string) (*performance.Summary, error)
}

// Handler handles performance HTTP requests
type Handler struct {
	service Summarizer
	log     zerolog.Logger
}

// NewHandler creates a new performance handler
func NewHandler(service Summarizer, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "performance").Logger(),
	}
}

// RegisterRoutes registers the performance routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/performance/portfolios/{id}", h.HandleGetSummary)
}

// HandleGetSummary handles GET /performance/portfolios/{id}
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return
	}

	summary, err := h.service.Summarize(r.Context(), chi.URLParam(r, "id"), userID)
	if errors.Is(err, performance.ErrPortfolioNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to summarize performance")
		h.writeError(w, http.StatusInternalServerError, "failed to summarize performance")
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
