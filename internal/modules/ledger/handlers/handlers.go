// Package handlers provides HTTP handlers for ledger operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/eqtrak/internal/domain"
	"github.com/aristath/eqtrak/internal/modules/ledger"
)

// Handler handles ledger HTTP requests
type Handler struct {
	repo *ledger.Repository
	log  zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(repo *ledger.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "ledger").Logger(),
	}
}

// RecordTransactionRequest is the body of POST /positions/{id}/transactions.
// Amounts are decimal strings; date is YYYY-MM-DD.
type RecordTransactionRequest struct {
	Type     domain.TransactionType   `json:"transaction_type"`
	Status   domain.TransactionStatus `json:"status"`
	Quantity decimal.Decimal          `json:"quantity"`
	Price    decimal.Decimal          `json:"price"`
	Fees     decimal.Decimal          `json:"fees"`
	Currency string                   `json:"currency"`
	Date     string                   `json:"date"`
	Notes    string                   `json:"notes"`
}

// HandleRecordTransaction handles POST /positions/{id}/transactions
func (h *Handler) HandleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req RecordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	tx, err := h.repo.Record(r.Context(), ledger.NewTransaction{
		Date:       date,
		PositionID: chi.URLParam(r, "id"),
		Type:       req.Type,
		Status:     req.Status,
		Currency:   req.Currency,
		Notes:      req.Notes,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Fees:       req.Fees,
	})
	if errors.Is(err, ledger.ErrPositionNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, tx)
}

// HandleListTransactions handles GET /positions/{id}/transactions
func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.repo.ListForPosition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// HandleGetTransaction handles GET /transactions/{id}
func (h *Handler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.repo.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tx == nil {
		h.writeError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// HandleSetStatus handles PUT /transactions/{id}/status
func (h *Handler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status domain.TransactionStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.repo.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if errors.Is(err, ledger.ErrTransactionNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
