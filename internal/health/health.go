// Package health provides the liveness and readiness endpoints served
// on the admin listener.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/vyrodovalexey/bookproxy/internal/observability"
)

// checkTimeout bounds one readiness probe run.
const checkTimeout = 5 * time.Second

// Check is one named readiness dependency probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Handler serves liveness and readiness probes.
type Handler struct {
	mu        sync.RWMutex
	checks    []Check
	logger    observability.Logger
	startTime time.Time
}

// NewHandler creates a health handler.
func NewHandler(logger observability.Logger) *Handler {
	return &Handler{
		logger:    logger,
		startTime: time.Now(),
	}
}

// AddCheck registers a readiness dependency probe.
func (h *Handler) AddCheck(name string, probe func(ctx context.Context) error) {
	h.mu.Lock()
	h.checks = append(h.checks, Check{Name: name, Probe: probe})
	h.mu.Unlock()
}

// Liveness answers 200 whenever the process is up.
func (h *Handler) Liveness() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}

// Readiness runs every registered probe and answers 503 when any
// fails.
func (h *Handler) Readiness() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		h.mu.RLock()
		checks := make([]Check, len(h.checks))
		copy(checks, h.checks)
		h.mu.RUnlock()

		status := http.StatusOK
		body := `{"status":"ok","uptime":"` + time.Since(h.startTime).Round(time.Second).String() + `"}`

		for _, check := range checks {
			if err := check.Probe(ctx); err != nil {
				h.logger.Warn("readiness check failed",
					observability.String("check", check.Name),
					observability.Error(err))
				status = http.StatusServiceUnavailable
				body = `{"status":"error","failed":"` + check.Name + `"}`
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}
