package api

import (
	"net/http"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

type healthResponse struct {
	Status  string                `json:"status"`
	Servers []domain.HealthRecord `json:"servers"`
}

type statusResponse struct {
	ActiveJobs    []string              `json:"activeJobs"`
	Servers       []domain.HealthRecord `json:"servers"`
	Stats         domain.RegistryStats  `json:"stats"`
	DroppedEvents uint64                `json:"droppedEvents"`
}

// Healthz handles GET /healthz. Degraded means at least one capability
// server failed its last check.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !h.health.Healthy() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	servers := h.health.Health()
	if servers == nil {
		servers = []domain.HealthRecord{}
	}
	h.respondJSON(w, code, healthResponse{Status: status, Servers: servers})
}

// Status handles GET /api/status with a fuller operational picture.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	active := h.runner.Active()
	if active == nil {
		active = []string{}
	}
	servers := h.health.Health()
	if servers == nil {
		servers = []domain.HealthRecord{}
	}
	h.respondJSON(w, http.StatusOK, statusResponse{
		ActiveJobs:    active,
		Servers:       servers,
		Stats:         h.health.Stats(),
		DroppedEvents: h.stream.Dropped(),
	})
}
