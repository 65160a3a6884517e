package returns

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/returns/entries", h.ListEntries)
	r.Post("/returns/entries", h.CreateEntry)
	r.Get("/returns/entries/{id}", h.ShowEntry)
	r.Post("/returns/entries/{id}/links", h.ConfirmLinks)
	r.Post("/order-items/{id}/return", h.ApplyReturn)
}
