// Package server exposes the HTTP control API: health, metrics, bar status
// and admin operations. Every request gets a correlation ID and a trace span;
// /api routes sit behind admin auth and a per-client rate limit.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps collects what the router needs.
type Deps struct {
	Service BarService
	// Health is optional; readiness skips the database check when nil.
	Health Pinger
	Auth   AuthConfig
	// RatePerMinute limits /api requests per client; <= 0 disables it.
	RatePerMinute int
}

// NewRouter returns the HTTP handler with all routes.
// ctx bounds the rate limiter's cleanup goroutine.
func NewRouter(ctx context.Context, deps Deps) http.Handler {
	h := NewHandlers(deps.Service, deps.Health)
	if !deps.Auth.Enabled() {
		slog.Warn("Admin authentication not configured - /api endpoints are UNPROTECTED. Set ADMIN_TOKEN or ADMIN_USERNAME+ADMIN_PASSWORD for production")
	}

	r := chi.NewRouter()
	r.Use(correlationMiddleware)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.HandleHealthz)
	r.Get("/readyz", h.HandleReadyz)

	r.Route("/api", func(r chi.Router) {
		r.Use(adminAuth(deps.Auth))
		if deps.RatePerMinute > 0 {
			r.Use(newClientRateLimiter(ctx, deps.RatePerMinute).Middleware)
		}

		r.Get("/status", h.HandleStatus)
		r.Get("/bars", h.HandleBars)
		r.Get("/emojis", h.HandleEmojis)
		r.Post("/reconcile", h.HandleReconcile)

		r.Route("/global", func(r chi.Router) {
			r.Post("/update", h.HandleGlobalUpdate)
			r.Post("/state", h.HandleGlobalState)
		})

		r.Route("/bar/{channelID}", func(r chi.Router) {
			r.Post("/update", h.HandleBarUpdate)
			r.Post("/drop", h.HandleBarDrop)
			r.Get("/history", h.HandleBarHistory)
		})
	})
	return r
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// WithoutCancel keeps context values while letting shutdown finish.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
