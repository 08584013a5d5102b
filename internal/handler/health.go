package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"dumpgw/internal/dump"
)

// Pinger is a dependency the gateway needs before it is ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	// Archive is checked by Readiness when set.
	Archive Pinger
	// Dumpers lists the active dump handlers for Status.
	Dumpers func() []*dump.Dumper
}

// LivenessResponse represents liveness probe response.
type LivenessResponse struct {
	Status string `json:"status"`
	Time   int64  `json:"timestamp"`
}

// ReadinessResponse represents readiness probe response.
type ReadinessResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis"`
}

// DumpStatus describes one dump handler's delivery targets.
type DumpStatus struct {
	Collector string   `json:"collector"`
	Framing   string   `json:"framing"`
	Format    string   `json:"format"`
	Sinks     []string `json:"sinks"`
}

// Liveness returns 200 if the service is running.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LivenessResponse{
		Status: "alive",
		Time:   time.Now().Unix(),
	})
}

// Readiness returns 503 while the configured archive is unreachable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := ReadinessResponse{Status: "ready", Redis: "disabled"}
	if h.Archive != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Archive.Ping(ctx); err != nil {
			resp.Status = "not ready"
			resp.Redis = err.Error()
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			resp.Redis = "ok"
		}
	}
	json.NewEncoder(w).Encode(resp)
}

// Status returns detailed status information.
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	dumps := []DumpStatus{}
	if h.Dumpers != nil {
		for _, d := range h.Dumpers() {
			addr, framing := d.Target()
			dumps = append(dumps, DumpStatus{
				Collector: addr,
				Framing:   string(framing),
				Format:    string(d.Format()),
				Sinks:     d.Sinks(),
			})
		}
	}
	status := map[string]interface{}{
		"service":   "dumpgw",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(startTime).Seconds(),
		"dump":      dumps,
	}
	json.NewEncoder(w).Encode(status)
}

var startTime = time.Now()
