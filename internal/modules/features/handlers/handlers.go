// Package handlers provides HTTP handlers for feature family switches.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/modules/features"
)

// Handler handles feature gate HTTP requests
type Handler struct {
	gate *features.Gate
	log  zerolog.Logger
}

// NewHandler creates a new feature handler
func NewHandler(gate *features.Gate, log zerolog.Logger) *Handler {
	return &Handler{
		gate: gate,
		log:  log.With().Str("handler", "features").Logger(),
	}
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// RegisterRoutes registers the feature routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/features", func(r chi.Router) {
		r.Get("/", h.HandleGetFeatures)
		r.Put("/{family}/system", h.HandleSetSystem)
		r.Put("/{family}/user", h.HandleSetUser)
	})
}

// HandleGetFeatures handles GET /features
func (h *Handler) HandleGetFeatures(w http.ResponseWriter, r *http.Request) {
	states, err := h.gate.States(r.Context(), userFromRequest(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, states)
}

// HandleSetSystem handles PUT /features/{family}/system
func (h *Handler) HandleSetSystem(w http.ResponseWriter, r *http.Request) {
	family := chi.URLParam(r, "family")
	enabled, ok := h.decodeToggle(w, r, family)
	if !ok {
		return
	}

	if err := h.gate.SetSystemEnabled(family, enabled); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"family": family, "enabled": enabled})
}

// HandleSetUser handles PUT /features/{family}/user
func (h *Handler) HandleSetUser(w http.ResponseWriter, r *http.Request) {
	userID := userFromRequest(r)
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return
	}

	family := chi.URLParam(r, "family")
	enabled, ok := h.decodeToggle(w, r, family)
	if !ok {
		return
	}

	if err := h.gate.SetUserEnabled(r.Context(), family, userID, enabled); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"family": family, "user_id": userID, "enabled": enabled})
}

func (h *Handler) decodeToggle(w http.ResponseWriter, r *http.Request, family string) (bool, bool) {
	if !features.KnownFamily(family) {
		h.writeError(w, http.StatusNotFound, "Unknown feature family")
		return false, false
	}
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		h.writeError(w, http.StatusBadRequest, `Body must be {"enabled": true|false}`)
		return false, false
	}
	return *req.Enabled, true
}

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
