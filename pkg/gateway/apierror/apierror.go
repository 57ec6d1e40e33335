// Package apierror defines the gateway's JSON error surface. Failures the
// gateway itself produces always carry success=false so clients never have
// to sniff shapes.
package apierror

import (
	"encoding/json"
	"net/http"
)

type Type string

const (
	ErrInvalidRequest Type = "invalid_request_error"
	ErrAuthentication Type = "authentication_error"
	ErrNotFound       Type = "not_found_error"
	ErrRateLimited    Type = "rate_limit_error"
	ErrUpstream       Type = "upstream_error"
	ErrInternal       Type = "api_error"
)

type Error struct {
	Type      Type   `json:"type"`
	Message   string `json:"message"`
	Param     string `json:"param,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

type Envelope struct {
	Error   *Error `json:"error"`
	Success bool   `json:"success"`
}

func StatusFor(t Type) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthentication:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Write emits the envelope with the status implied by the error type.
func Write(w http.ResponseWriter, reqID string, apiErr *Error) {
	if apiErr.RequestID == "" {
		apiErr.RequestID = reqID
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(StatusFor(apiErr.Type))
	_ = json.NewEncoder(w).Encode(Envelope{Error: apiErr})
}
