package orders

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the order routes on an /api router. Each extra
// function is mounted on the /orders/{id} sub-router.
func (h *Handler) MountRoutes(r chi.Router, orderScoped ...func(chi.Router)) {
	r.Get("/alerts/etd", h.ETDAlerts)
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/stages", h.Stages)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Show)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/status", h.ChangeStatus)
			r.Put("/approvals", h.SetApproval)
			r.Get("/timeline", h.Timeline)
			r.Post("/lines", h.AddLine)
			r.Put("/lines/{lineID}", h.UpdateLine)
			r.Delete("/lines/{lineID}", h.DeleteLine)
			r.Put("/lines/{lineID}/approvals", h.SetLineApproval)
			for _, mount := range orderScoped {
				mount(r)
			}
		})
	})
}
