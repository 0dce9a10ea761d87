// Package httputil writes JSON responses and translates domain error codes
// into HTTP statuses.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "lexaudit/pkg/domain-errors"
)

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status and writes {"error", "error_description"}.
// Descriptions of server-side failures are not exposed.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)

	body := map[string]string{"error": string(code)}
	if status < http.StatusInternalServerError {
		var msg string
		if de := asDomain(err); de != nil {
			msg = de.Message
		}
		if msg != "" {
			body["error_description"] = msg
		}
	}
	WriteJSON(w, status, body)
}

// StatusFor returns the HTTP status for a domain error code.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeInvalidRecord, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeBudgetExceeded:
		return http.StatusForbidden
	case dErrors.CodeTamperDetected:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func asDomain(err error) *dErrors.Error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de
	}
	return nil
}
