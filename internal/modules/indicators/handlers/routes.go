package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers indicator routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/kpis", h.HandleGetKPIs)
}
