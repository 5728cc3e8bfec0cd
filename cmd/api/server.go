package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/FACorreiaa/bwa-insights/pkg/middleware"
)

// Router builds the API handler with middleware and CORS applied.
func (d *Dependencies) Router() http.Handler {
	mux := http.NewServeMux()

	d.ImportHandler.Register(mux)
	d.InsightsHandler.Register(mux)
	d.ExportHandler.Register(mux)
	d.RulesHandler.Register(mux)

	mux.HandleFunc("GET /healthz", d.health)

	handler := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Logger(d.Logger),
		middleware.Recovery(d.Logger),
	)

	c := cors.New(cors.Options{
		AllowedOrigins: d.Config.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:         300,
	})
	return c.Handler(handler)
}

func (d *Dependencies) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := d.DB.Health(ctx); err != nil {
		d.Logger.Warn("health check failed", "error", err)
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "unreachable",
		})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// NewServer returns the API server.
func (d *Dependencies) NewServer() *http.Server {
	return &http.Server{
		Addr:              d.Config.Server.Addr(),
		Handler:           d.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       d.Config.Server.ReadTimeout,
		WriteTimeout:      d.Config.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

// NewMetricsServer serves /metrics on its own port, or returns nil when
// metrics are disabled.
func (d *Dependencies) NewMetricsServer() *http.Server {
	if !d.Config.Observability.MetricsEnabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", d.Config.Observability.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
