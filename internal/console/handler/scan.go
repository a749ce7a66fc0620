package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/xela07ax/estate-integrity/internal/console/service"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/engine"
)

type ScanService interface {
	TriggerScan(ctx context.Context, req engine.ScanRequest) (*domain.RunResult, error)
}

type ScanHandler struct {
	service ScanService
}

func NewScanHandler(s ScanService) *ScanHandler {
	return &ScanHandler{service: s}
}

type ScanRequest struct {
	TenantID string `json:"tenant_id"`
	DryRun   bool   `json:"dry_run"`
	Trigger  string `json:"trigger"`
}

// Trigger запускает прогон и отвечает полным RunResult
// POST /v1/scans {"tenant_id": "...", "dry_run": true}
func (h *ScanHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	// Пустое тело — прогон по всем хозяйствам
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, errors.Join(service.ErrInvalidArgument, err))
		return
	}

	res, err := h.service.TriggerScan(r.Context(), engine.ScanRequest{
		TriggerSource: domain.TriggerSource(req.Trigger),
		DryRun:        req.DryRun,
		TenantID:      req.TenantID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
