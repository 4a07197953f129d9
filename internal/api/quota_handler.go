package api

import (
	"net/http"

	"github.com/driveflow/driveflow-api/internal/api/shared"
	"github.com/driveflow/driveflow-api/internal/quota"
)

// QuotaResponse wraps the per-provider usage snapshot.
type QuotaResponse struct {
	Providers []quota.Usage `json:"providers"`
}

// QuotaHandler serves the quota governor's usage snapshot.
type QuotaHandler struct {
	governor *quota.Governor
}

// NewQuotaHandler creates a new QuotaHandler.
func NewQuotaHandler(governor *quota.Governor) *QuotaHandler {
	return &QuotaHandler{governor: governor}
}

// GetQuota handles GET /api/quota requests.
func (h *QuotaHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, QuotaResponse{
		Providers: h.governor.CurrentUsage(),
	})
}
