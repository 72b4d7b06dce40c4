// Package handlers provides HTTP handlers for metric definitions and values.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/eqtrak/internal/domain"
	"github.com/aristath/eqtrak/internal/modules/metrics"
)

const dateLayout = "2006-01-02"

// Handler handles metric HTTP requests
type Handler struct {
	service *metrics.Service
	log     zerolog.Logger
}

// NewHandler creates a new metrics handler
func NewHandler(service *metrics.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "metrics").Logger(),
	}
}

// RecordValueRequest is the body of PUT /metrics/{id}/values
type RecordValueRequest struct {
	Numeric       *decimal.Decimal `json:"numeric_value"`
	Text          *string          `json:"text_value"`
	Confidence    *float64         `json:"confidence"`
	PortfolioID   string           `json:"portfolio_id"`
	PositionID    string           `json:"position_id"`
	TransactionID string           `json:"transaction_id"`
	Date          string           `json:"date"`
	Scenario      metrics.Scenario `json:"scenario"`
	Notes         string           `json:"notes"`
	IsForecast    bool             `json:"is_forecast"`
}

// HandleListMetrics returns the active metrics visible to the caller
func (h *Handler) HandleListMetrics(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var scope domain.ScopeType
	if raw := r.URL.Query().Get("scope"); raw != "" {
		parsed, err := domain.ParseScope(strings.ToUpper(raw))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		scope = parsed
	}

	defs, err := h.service.ListActiveMetrics(r.Context(), scope, userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if defs == nil {
		defs = []metrics.Definition{}
	}
	h.writeJSON(w, http.StatusOK, defs)
}

// HandleCreateMetric creates a custom metric owned by the caller
func (h *Handler) HandleCreateMetric(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req metrics.CustomMetric
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.OwnerID = userID

	def, err := h.service.CreateCustomMetric(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, def)
}

// HandleGetMetric returns one definition visible to the caller
func (h *Handler) HandleGetMetric(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	def, err := h.service.GetMetric(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, def)
}

// HandleUpdateMetric edits a custom metric
func (h *Handler) HandleUpdateMetric(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var patch metrics.DefinitionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	def, err := h.service.UpdateMetric(r.Context(), chi.URLParam(r, "id"), userID, patch)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, def)
}

// HandleDeleteMetric removes a custom metric and its values
func (h *Handler) HandleDeleteMetric(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteCustomMetric(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCompute evaluates a metric for the target in the query string
func (h *Handler) HandleCompute(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	target, ok := h.targetFromQuery(w, r)
	if !ok {
		return
	}

	result, err := h.service.ComputeValue(r.Context(), chi.URLParam(r, "id"), target, userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleLatest returns the most recent stored value. A scenario query
// parameter selects the latest forecast of that scenario instead.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	target, ok := h.targetFromQuery(w, r)
	if !ok {
		return
	}

	metricID := chi.URLParam(r, "id")
	var (
		value *metrics.Value
		err   error
	)
	if scenario := metrics.Scenario(strings.ToUpper(r.URL.Query().Get("scenario"))); scenario != metrics.ScenarioNone {
		value, err = h.service.LatestForecast(r.Context(), metricID, target, scenario, userID)
	} else {
		value, err = h.service.LatestValue(r.Context(), metricID, target, userID)
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if value == nil {
		h.writeError(w, http.StatusNotFound, "No stored value")
		return
	}
	h.writeJSON(w, http.StatusOK, value)
}

// HandleValues returns stored values dated within [start, end]
func (h *Handler) HandleValues(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	target, ok := h.targetFromQuery(w, r)
	if !ok {
		return
	}

	start, err := time.Parse(dateLayout, r.URL.Query().Get("start"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(dateLayout, r.URL.Query().Get("end"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
		return
	}

	values, err := h.service.ValuesInRange(r.Context(), chi.URLParam(r, "id"), target, start, end, userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if values == nil {
		values = []metrics.Value{}
	}
	h.writeJSON(w, http.StatusOK, values)
}

// HandleRecordValue stores a user-entered value
func (h *Handler) HandleRecordValue(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req RecordValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	in := metrics.ValueInput{
		Numeric:    req.Numeric,
		Text:       req.Text,
		Confidence: req.Confidence,
		Target: metrics.TargetRef{
			PortfolioID:   req.PortfolioID,
			PositionID:    req.PositionID,
			TransactionID: req.TransactionID,
		},
		Scenario:   metrics.Scenario(strings.ToUpper(string(req.Scenario))),
		Notes:      req.Notes,
		IsForecast: req.IsForecast,
	}
	if req.Date != "" {
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		in.Date = date
	}

	value, err := h.service.RecordValue(r.Context(), chi.URLParam(r, "id"), userID, in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, value)
}

// Helper methods

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return "", false
	}
	return userID, true
}

func (h *Handler) targetFromQuery(w http.ResponseWriter, r *http.Request) (domain.Target, bool) {
	q := r.URL.Query()
	ref := metrics.TargetRef{
		PortfolioID:   q.Get("portfolio_id"),
		PositionID:    q.Get("position_id"),
		TransactionID: q.Get("transaction_id"),
	}
	target, err := ref.Target()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return domain.Target{}, false
	}
	return target, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, metrics.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, metrics.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, metrics.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, metrics.ErrCyclicDependency):
		return http.StatusConflict
	case errors.Is(err, metrics.ErrScopeMismatch),
		errors.Is(err, metrics.ErrInvalidValue),
		errors.Is(err, metrics.ErrInvalidDefinition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, metrics.ErrExternalUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Metric request failed")
	}
	h.writeError(w, status, err.Error())
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
