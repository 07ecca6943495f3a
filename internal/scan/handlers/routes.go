package handlers

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts the scan routes on the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/scan", func(r chi.Router) {
		r.Get("/", h.HandleScan)
		r.Post("/", h.HandleScan)
		r.Get("/cache", h.HandleCacheStatus)
	})
}
