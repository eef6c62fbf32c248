package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig controls auth and limits of the API router.
type RouterConfig struct {
	// AuthEnabled controls whether Bearer token auth is enforced.
	AuthEnabled bool
	Token       string
	// RequestTimeout bounds every route except the event stream; 0 disables it.
	RequestTimeout time.Duration
	// Events, if non-nil, is mounted at GET /users/{ownerID}/events.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc Services, cfg RouterConfig) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	r.Route("/users/{ownerID}", func(r chi.Router) {
		// Long-lived stream; no request timeout.
		if cfg.Events != nil {
			r.Get("/events", cfg.Events.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			if cfg.RequestTimeout > 0 {
				r.Use(middleware.Timeout(cfg.RequestTimeout))
			}

			// Entries.
			r.Get("/entries", h.ListEntries)
			r.Post("/entries", h.CreateEntry)
			r.Get("/entries/{entryID}", h.GetEntry)
			r.Put("/entries/{entryID}", h.UpdateEntry)
			r.Delete("/entries/{entryID}", h.DeleteEntry)

			// Retrieval.
			r.Get("/search", h.Search)

			// Chat.
			r.Post("/chat", h.Chat)
			r.Get("/conversations/{conversationID}/messages", h.Messages)
		})
	})

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		r.Post("/prompt", h.Prompt)
	})

	return r
}
