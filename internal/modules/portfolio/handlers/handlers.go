// Package handlers provides HTTP handlers for portfolio management.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/domain"
	"github.com/aristath/eqtrak/internal/modules/portfolio"
)

// Handler handles portfolio and position HTTP requests
type Handler struct {
	repo *portfolio.Repository
	log  zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(repo *portfolio.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "portfolio").Logger(),
	}
}

// CreatePortfolioRequest is the body of POST /portfolios
type CreatePortfolioRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Currency    string `json:"currency"`
}

// CreatePositionRequest is the body of POST /portfolios/{id}/positions
type CreatePositionRequest struct {
	Ticker       string              `json:"ticker"`
	PositionType domain.PositionType `json:"position_type"`
}

// HandleListPortfolios returns the caller's portfolios
func (h *Handler) HandleListPortfolios(w http.ResponseWriter, r *http.Request) {
	userID := userFromRequest(r)
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return
	}

	portfolios, err := h.repo.ListPortfolios(r.Context(), userID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if portfolios == nil {
		portfolios = []domain.Portfolio{}
	}
	h.writeJSON(w, http.StatusOK, portfolios)
}

// HandleCreatePortfolio creates a portfolio owned by the caller
func (h *Handler) HandleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	userID := userFromRequest(r)
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return
	}

	var req CreatePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := h.repo.CreatePortfolio(r.Context(), userID, req.Name, req.Description, req.Currency)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

// HandleGetPortfolio returns one portfolio with its active positions
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.repo.GetPortfolio(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		h.writeError(w, http.StatusNotFound, "Portfolio not found")
		return
	}

	positions, err := h.repo.ActivePositions(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio": p,
		"positions": positions,
	})
}

// HandleDeletePortfolio deletes a portfolio and everything under it
func (h *Handler) HandleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	err := h.repo.DeletePortfolio(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, portfolio.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Portfolio not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreatePosition opens a position in a portfolio
func (h *Handler) HandleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var req CreatePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := h.repo.CreatePosition(r.Context(), chi.URLParam(r, "id"), req.Ticker, req.PositionType)
	if errors.Is(err, portfolio.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Portfolio not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

// HandleClosePosition marks a position inactive
func (h *Handler) HandleClosePosition(w http.ResponseWriter, r *http.Request) {
	err := h.repo.ClosePosition(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, portfolio.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Position not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helper methods

func userFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
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
