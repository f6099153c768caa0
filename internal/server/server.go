// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/matthewbaird/rentpulse/internal/handler"
)

// Config holds server configuration.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	Pricing    *handler.PricingHandler
	Automation *handler.AutomationHandler

	// Feed serves the websocket event stream; nil disables /v1/feed.
	Feed   http.Handler
	Logger *slog.Logger
}

// NewRouter registers every route on a chi router.
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(handler.Recovery)
	r.Use(handler.RequestID)
	r.Use(handler.Logging(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", "X-Actor", "X-Source", "X-Correlation-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		if ph := cfg.Pricing; ph != nil {
			r.Post("/recommendations", ph.Recommend)
			r.Post("/renter/deals", ph.Deals)
			r.Post("/renter/summary", ph.Summary)
			r.Post("/portfolio/analysis", ph.Portfolio)
		}

		if ah := cfg.Automation; ah != nil {
			r.Post("/evaluations", ah.Evaluate)
			r.Post("/evaluations/batch", ah.EvaluateBatch)

			r.Route("/rules", func(r chi.Router) {
				r.Get("/", ah.ListRules)
				r.Post("/", ah.CreateRule)
				r.Get("/{id}", ah.GetRule)
				r.Patch("/{id}", ah.UpdateRule)
				r.Delete("/{id}", ah.DeleteRule)
			})

			r.Get("/settings", ah.GetSettings)
			r.Patch("/settings", ah.UpdateSettings)

			r.Route("/actions", func(r chi.Router) {
				r.Get("/", ah.ListActions)
				r.Post("/expire", ah.ExpireActions)
				r.Post("/{id}/approve", ah.ApproveAction)
				r.Post("/{id}/reject", ah.RejectAction)
			})

			r.Get("/history", ah.History)
			r.Get("/stats", ah.Stats)
		}

		if cfg.Feed != nil {
			r.Get("/feed", cfg.Feed.ServeHTTP)
		}
	})

	return r
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	router := NewRouter(cfg)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Addr, "routes", countRoutes(router))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	logger.Info("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func countRoutes(r chi.Routes) int {
	n := 0
	chi.Walk(r, func(string, string, http.Handler, ...func(http.Handler) http.Handler) error {
		n++
		return nil
	})
	return n
}
