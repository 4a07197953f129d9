package api

import (
	"net/http"

	"github.com/driveflow/driveflow-api/internal/api/shared"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthResponse reports service liveness and host resource usage.
type HealthResponse struct {
	Status        string  `json:"status"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
}

// HealthHandler serves the health endpoint.
type HealthHandler struct{}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// GetHealth handles GET /health requests. Resource sampling failures leave
// the gauges at zero rather than failing the probe.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}

	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		resp.CPUPercent = pcts[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryPercent = vm.UsedPercent
		resp.MemoryUsedMB = vm.Used / 1024 / 1024
		resp.MemoryTotalMB = vm.Total / 1024 / 1024
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
