package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// envelope: успешный ответ.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorBody struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Kind       string `json:"kind,omitempty"`
}

// errorEnvelope: ответ с ошибкой.
type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, kind domain.Kind, message string) {
	writeJSON(w, status, errorEnvelope{
		Error: errorBody{Message: message, StatusCode: status, Kind: string(kind)},
	})
}

// statusOf переводит вид ошибки в HTTP-статус.
func statusOf(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindConstraint:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
