package routes

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/paywalls-net/filter/app"
	"github.com/paywalls-net/filter/handlers"
	"github.com/paywalls-net/filter/metrics"
)

// SetupRoutes configures the sidecar handler chain. Operational endpoints
// are answered locally; every other request runs through the filter and,
// when not intercepted, is forwarded to the origin.
func SetupRoutes(deps *app.Dependencies) (http.Handler, error) {
	origin, err := newOriginProxy(deps)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))
	r.Get("/statusz", handlers.StatusHandler(deps))

	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	filtered := deps.FilterMiddleware.Filter(origin)

	// The verification artifacts are fetched cross-origin by operator
	// pages, so their routes carry permissive CORS headers.
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
	prefix := deps.Config.Service.VAIPathPrefix
	r.With(corsHandler).Get(prefix+"/vai.json", filtered.ServeHTTP)
	r.With(corsHandler).Get(prefix+"/vai.js", filtered.ServeHTTP)

	// Everything else is filtered and, when allowed, forwarded.
	r.Handle("/*", filtered)

	return r, nil
}

// newOriginProxy builds the reverse proxy for traffic the filter lets
// through. The inbound Host header is preserved so the origin serves the
// site the visitor asked for.
func newOriginProxy(deps *app.Dependencies) (http.Handler, error) {
	if deps.Config.Server.OriginURL == "" {
		return nil, fmt.Errorf("origin URL is required in sidecar mode")
	}

	target, err := url.Parse(deps.Config.Server.OriginURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse origin URL: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.FlushInterval = -1
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		deps.Logger.Error("origin proxy error",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("Bad Gateway."))
	}

	return proxy, nil
}
