package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type snapshotCounter interface {
	Count() int
}

type brokerChecker interface {
	HealthCheck(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type workerCounter interface {
	Count() int
}

// readiness reports ready once the broker and cache answer and at least one
// worker is polling. An empty catalog is reported but does not block
// readiness; snapshots load on first use.
type readiness struct {
	catalog snapshotCounter
	zeebe   brokerChecker
	redis   pinger
	workers workerCounter
	timeout time.Duration
}

func (r *readiness) check(ctx context.Context) (map[string]interface{}, bool) {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ready := true
	checks := map[string]interface{}{}

	if r.zeebe != nil {
		if err := r.zeebe.HealthCheck(ctx); err != nil {
			checks["zeebe"] = err.Error()
			ready = false
		} else {
			checks["zeebe"] = "ok"
		}
	}
	if r.redis != nil {
		if err := r.redis.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			ready = false
		} else {
			checks["redis"] = "ok"
		}
	}
	if r.workers != nil {
		n := r.workers.Count()
		checks["workers"] = n
		if n == 0 {
			ready = false
		}
	}
	if r.catalog != nil {
		checks["snapshots"] = r.catalog.Count()
	}
	return checks, ready
}

func newHealthServer(addr string, ready *readiness) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checks, ok := ready.check(r.Context())
		body := map[string]interface{}{
			"status": "ready",
			"checks": checks,
			"time":   time.Now().Format(time.RFC3339),
		}
		code := http.StatusOK
		if !ok {
			body["status"] = "not_ready"
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, body)
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeStatus(w http.ResponseWriter, code int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
