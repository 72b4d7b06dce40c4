package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/positions/{id}/transactions", func(r chi.Router) {
		r.Get("/", h.HandleListTransactions)
		r.Post("/", h.HandleRecordTransaction)
	})
	r.Route("/transactions/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGetTransaction)
		r.Put("/status", h.HandleSetStatus)
	})
}
