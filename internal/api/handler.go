// Package api provides the local HTTP surface of the coaching daemon.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/codecoach/internal/domain"
	"github.com/ashureev/codecoach/internal/session"
)

// maxBodyBytes bounds request bodies; chat carries editor context.
const maxBodyBytes = 1 << 20

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Fail maps err onto a status code and writes it with its error kind.
func Fail(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	body := map[string]interface{}{
		"error": err.Error(),
		"kind":  domain.KindOf(err),
	}
	if errors.Is(err, session.ErrRetryable) {
		body["retryable"] = true
	}
	JSON(w, status, body)
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNoActiveSession),
		errors.Is(err, session.ErrInvalidState),
		errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, session.ErrRetryable):
		return http.StatusServiceUnavailable
	}
	switch domain.KindOf(err) {
	case "validation":
		return http.StatusBadRequest
	case "auth":
		return http.StatusUnauthorized
	case "network":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
