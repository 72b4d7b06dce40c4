package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all metric routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/metrics", func(r chi.Router) {
		r.Get("/", h.HandleListMetrics)
		r.Post("/", h.HandleCreateMetric)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGetMetric)
			r.Patch("/", h.HandleUpdateMetric)
			r.Delete("/", h.HandleDeleteMetric)
			r.Get("/compute", h.HandleCompute)
			r.Get("/latest", h.HandleLatest)
			r.Get("/values", h.HandleValues)
			r.Put("/values", h.HandleRecordValue)
		})
	})
}
