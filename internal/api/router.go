// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/everly/internal/config"
	"github.com/tomtom215/everly/internal/logging"
	"github.com/tomtom215/everly/internal/middleware"
	"github.com/tomtom215/everly/internal/module"
)

// RouterOptions carries the optional parts of the root router.
type RouterOptions struct {
	// WebSocket, when set, is served at <api prefix>/ws.
	WebSocket http.Handler
}

// NewRouter assembles the root HTTP handler: the global middleware chain,
// /health, /metrics, the API docs, static uploads and every initialized
// module mounted under the configured API prefix.
func NewRouter(cfg *config.Config, mgr *module.Manager, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(cfg.Security.CORSOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, r, map[string]interface{}{
			"name":    "Everly",
			"modules": len(mgr.Modules()),
			"api":     cfg.Server.APIPrefix,
			"docs":    DocsPath,
		})
	})
	r.Get("/health", HealthHandler(mgr))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if err := mountDocs(r, cfg.Server.APIPrefix); err != nil {
		logging.Error().Err(err).Msg("API documentation unavailable")
	}

	if cfg.Server.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.Server.StaticDir)))
		r.With(middleware.SecurityHeaders).Handle("/static/*", fs)
	}

	apiRouter := chi.NewRouter()
	apiRouter.Use(RateLimit(cfg.Security))
	apiRouter.Use(middleware.SecurityHeaders)
	apiRouter.Use(middleware.PrometheusMetrics)
	if opts.WebSocket != nil {
		apiRouter.Mount("/ws", opts.WebSocket)
	}
	apiRouter.Mount("/", mgr.CreateMainRouter())
	r.Mount(cfg.Server.APIPrefix, apiRouter)

	return r
}

// CORS returns the cross-origin middleware. Credentials are only allowed
// when the origins are listed explicitly.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowCredentials := true
	for _, o := range origins {
		if o == "*" {
			allowCredentials = false
			break
		}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.HeaderRequestID},
		ExposedHeaders:   []string{middleware.HeaderRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	})
}

// RateLimit limits API requests per client IP. It is a pass-through when
// rate limiting is disabled.
func RateLimit(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	if cfg.RateLimitDisabled || cfg.RateLimitReqs <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(cfg.RateLimitReqs, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			NewResponseWriter(w, r).TooManyRequests("Rate limit exceeded")
		}),
	)
}

// HealthHandler serves the aggregated module health report: 200 when every
// module is healthy, 503 otherwise.
func HealthHandler(mgr *module.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := mgr.HealthCheckAll(r.Context())

		status := http.StatusOK
		if !report.Healthy() {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(report); err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode health report")
		}
	}
}
