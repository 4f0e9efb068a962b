// Package httptransport assembles the public HTTP surface.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	platformmetrics "landregistry/internal/platform/metrics"
	"landregistry/internal/platform/middleware"
	"landregistry/internal/registry/handler"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/httputil"
	"landregistry/pkg/platform/middleware/auth"
	"landregistry/pkg/platform/middleware/request"
	"landregistry/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the pieces the router wires together. Stream is optional.
type Deps struct {
	Registry *handler.Handler
	Stream   http.Handler
	Verifier auth.TokenVerifier
	Metrics  *platformmetrics.Metrics
	Gatherer prometheus.Gatherer
	Health   map[string]HealthCheck
	Logger   *slog.Logger
}

// NewRouter exposes /healthz and /metrics without authentication and every
// registry route behind a bearer token.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Latency(d.Metrics))

	r.Get("/healthz", healthz(d.Health))
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireCaller(d.Verifier, d.Logger))
		r.Use(request.Logger(d.Logger))
		if d.Stream != nil {
			r.Get("/events/stream", d.Stream.ServeHTTP)
		}
		d.Registry.Register(r)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
	})
	return r
}

func healthz(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status": http.StatusText(status),
			"checks": results,
		})
	}
}
