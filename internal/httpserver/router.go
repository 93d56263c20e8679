package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"caching-proxy/internal/metrics"
	"caching-proxy/internal/middleware"
)

// SetupRouter sends every path and method to the forward handler.
func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, forward http.Handler) {
	r.Use(metrics.Middleware)

	r.Use(chimw.RequestID)
	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.AccessLog)
	r.Use(middleware.Recoverer())

	r.Handle("/*", forward)
}

// SetupAdminRouter serves health and metrics on the admin listener, away
// from the proxied path space.
func SetupAdminRouter(r *chi.Mux) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
