package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/rolesim/internal/identity"
)

// RegisterRoutes registers the dialogue routes. limit wraps the turn
// submission endpoint; nil disables rate limiting.
func (h *Handler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/catalog", h.GetCatalog)
		r.With(limit).Post("/evaluate", h.Evaluate)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.StartSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.With(limit).Post("/turns", h.SubmitTurn)
				r.Post("/phase", h.SkipPhase)
				r.Post("/close", h.CloseSession)
			})
		})

		r.Route("/learning", func(r chi.Router) {
			r.Get("/summary", h.LearningSummary)
			r.Post("/reset", h.ResetLearning)
		})
	})
}

// TraineeKey buckets requests by trainee for rate limiting.
func TraineeKey(r *http.Request) string {
	if id := identity.TraineeIDFromContext(r.Context()); id != "" {
		return id
	}
	return identity.IPFromRequest(r)
}
