package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cotel "github.com/Strob0t/Courier/internal/adapter/otel"
)

// Check probes one dependency for readiness.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Status is the body of /health.
type Status struct {
	Status  string `json:"status"`
	Channel string `json:"channel"`
	Paused  bool   `json:"paused"`
}

// RouterConfig holds what the operations router reports on.
type RouterConfig struct {
	ServiceName string
	Channel     string
	// Paused reports whether ingestion is paused. Optional.
	Paused func() bool
	Checks []Check
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

type readiness struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// NewRouter builds the chi router of the operations endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(10 * time.Second))
	r.Use(cotel.HTTPMiddleware(cfg.ServiceName))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		st := Status{Status: "ok", Channel: cfg.Channel}
		if cfg.Paused != nil {
			st.Paused = cfg.Paused()
		}
		writeJSON(w, http.StatusOK, st)
	})

	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		res := readiness{Ready: true, Checks: make(map[string]string, len(cfg.Checks))}
		for _, c := range cfg.Checks {
			if err := c.Probe(req.Context()); err != nil {
				res.Ready = false
				res.Checks[c.Name] = err.Error()
				continue
			}
			res.Checks[c.Name] = "ok"
		}
		status := http.StatusOK
		if !res.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, res)
	})

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}
