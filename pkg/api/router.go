package api

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) RegisterRoutes(r chi.Router) {
	// create rate limiter: 10 requests per second, max burst 20 requests
	rateLimiter := NewRateLimiter(10, 20)

	// apply rate limit middleware
	r.Use(rateLimiter.RateLimit)

	// register routes
	r.Post("/tasks", h.CreateTask)
	r.Get("/tasks", h.ListTasks)
	r.Get("/tasks/{taskID}", h.GetTask)
	r.Post("/tasks/{taskID}/claim", h.ClaimTask)
	r.Post("/tasks/{taskID}/result", h.SubmitResult)
	r.Post("/tasks/{taskID}/finalize", h.FinalizeTask)
	r.Get("/events", h.StreamEvents)
	r.Get("/health", h.Health)
}
