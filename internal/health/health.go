// Package health serves liveness and readiness probes for the lahstats
// process.
//
// GET /healthz answers 200 as long as the process can serve HTTP at all.
// GET /readyz runs every registered [Checker] and answers 200 only when all
// of them pass, so a deployment stops routing uploads to an instance whose
// database or job queue is unreachable. The body is a JSON object with a
// "status" field and a per-checker "checks" map.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness probe. Readiness is polled
// frequently, so a probe that cannot answer quickly counts as down.
const probeTimeout = 3 * time.Second

// Checker is one named dependency probe. Probe returns nil when the
// dependency can serve traffic.
type Checker struct {
	// Name keys the probe's entry in the /readyz response.
	Name string

	// Probe must honor ctx cancellation.
	Probe func(ctx context.Context) error
}

// report is the JSON body of both endpoints.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers /healthz and /readyz. The checker set is fixed at
// construction, so a Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New builds a Handler over the given checkers. /readyz runs them in order.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz reports liveness. It never fails.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every checker under a [probeTimeout] deadline and reports 503
// as soon as any of them fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{
		Status: "ok",
		Checks: make(map[string]string, len(h.checkers)),
	}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Probe(ctx)
		cancel()

		if err != nil {
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[c.Name] = "ok"
	}

	writeJSON(w, status, rep)
}

// Register mounts both endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
