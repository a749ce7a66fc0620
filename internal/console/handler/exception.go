package handler

import (
	"context"
	"net/http"

	"github.com/xela07ax/estate-integrity/internal/domain"
)

type ExceptionService interface {
	Exceptions(ctx context.Context, f domain.ExceptionFilter) ([]domain.Exception, error)
}

type ExceptionHandler struct {
	service ExceptionService
}

func NewExceptionHandler(s ExceptionService) *ExceptionHandler {
	return &ExceptionHandler{service: s}
}

// List возвращает реестр исключений с фильтрами
// GET /v1/exceptions?tenant_id=...&status=open&rule=...&limit=...
func (h *ExceptionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := h.service.Exceptions(r.Context(), domain.ExceptionFilter{
		TenantID: q.Get("tenant_id"),
		Status:   domain.ExceptionStatus(q.Get("status")),
		Rule:     domain.RuleCode(q.Get("rule")),
		Limit:    limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
