package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/waveform-labs/melodex/internal/api"
	"github.com/waveform-labs/melodex/internal/api/handlers"
	"github.com/waveform-labs/melodex/internal/api/middleware"
)

type RouterConfig struct {
	SearchHandler *handlers.SearchHandler
	WSHandler     *handlers.WSHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/ws", cfg.WSHandler.Serve)

	r.Post("/search", cfg.SearchHandler.Search)
	r.Get("/history", cfg.SearchHandler.History)
	r.Get("/suggestions", cfg.SearchHandler.Suggestions)
	r.Post("/feedback", cfg.SearchHandler.Feedback)

	return r
}
