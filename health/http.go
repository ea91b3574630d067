package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter builds a chi.Mux exposing aggregator's liveness/readiness view
// over HTTP, handing callers a plain chi.Router rather than a bespoke
// server type so it mounts under whatever top-level mux the process
// already runs. Three routes are registered:
//
//   - GET /healthz/live  — liveness probe; 200 unless IsLive reports false.
//   - GET /healthz/ready — readiness probe; 200 unless IsReady reports false.
//   - GET /healthz       — the full AggregatedStatus as JSON, for dashboards.
func NewRouter(aggregator HealthAggregator) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz/live", func(w http.ResponseWriter, req *http.Request) {
		live, err := aggregator.IsLive(req.Context())
		writeProbe(w, live, err)
	})

	r.Get("/healthz/ready", func(w http.ResponseWriter, req *http.Request) {
		ready, err := aggregator.IsReady(req.Context())
		writeProbe(w, ready, err)
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status, err := aggregator.CheckAll(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if status.OverallStatus == StatusCritical {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})

	return r
}

// writeProbe writes a bare 200/503 for the liveness and readiness routes,
// which kubelet-style probes only ever inspect by status code.
func writeProbe(w http.ResponseWriter, ok bool, err error) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
