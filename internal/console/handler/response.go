package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/estate-integrity/internal/console/service"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/engine"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError разводит доменные ошибки по HTTP-кодам
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrTenantNotFound), errors.Is(err, domain.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrRunInProgress):
		status = http.StatusConflict
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
