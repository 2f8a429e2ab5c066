package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cloo-solutions/stockrag/internal/api"
	"github.com/cloo-solutions/stockrag/internal/api/handlers"
	"github.com/cloo-solutions/stockrag/internal/api/middleware"
)

const maxBodyBytes int64 = 1 << 20

type RouterConfig struct {
	AdminToken    string
	Logger        *zap.Logger
	Gatherer      prometheus.Gatherer
	SyncHandler   *handlers.SyncHandler
	SearchHandler *handlers.SearchHandler
	ChatHandler   *handlers.ChatHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/sync", func(r chi.Router) {
		r.Get("/status", cfg.SyncHandler.Status)
		r.Get("/health", cfg.SyncHandler.Health)
		r.Get("/quality", cfg.SyncHandler.Quality)
		r.Get("/metrics", cfg.SyncHandler.Metrics)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminToken(cfg.AdminToken))
			r.Post("/full", cfg.SyncHandler.FullResync)
			r.Post("/{type}", cfg.SyncHandler.SyncType)
		})
	})

	r.With(middleware.AdminToken(cfg.AdminToken)).Delete("/index", cfg.SyncHandler.ClearIndex)

	r.Route("/search", func(r chi.Router) {
		r.Post("/", cfg.SearchHandler.Search)
		r.Post("/advanced", cfg.SearchHandler.Advanced)
		r.Post("/raw", cfg.SearchHandler.Raw)
	})

	r.Post("/chat", cfg.ChatHandler.Chat)

	return r
}
