package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/estate-integrity/internal/console/service"
	"github.com/xela07ax/estate-integrity/internal/domain"
)

type RunService interface {
	Runs(ctx context.Context, limit int) ([]domain.AgentRun, error)
	Run(ctx context.Context, id string) (*domain.AgentRun, error)
}

type RunHandler struct {
	service RunService
}

func NewRunHandler(s RunService) *RunHandler {
	return &RunHandler{service: s}
}

// List — последние прогоны, новые сверху
// GET /v1/runs?limit=...
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := h.service.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get — GET /v1/runs/{id}
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Run(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", service.ErrInvalidArgument, v)
	}
	return n, nil
}
