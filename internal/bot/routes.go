package bot

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/otk", func(r chi.Router) {
		r.Post("/messages", h.HandleMessage)
		r.Post("/decisions", h.HandleDecision)
		r.Get("/sessions/{userID}", h.GetSession)
		r.Get("/users/{userID}/inspections", h.ListInspections)
	})
}
