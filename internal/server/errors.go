package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/efiadm/api-categorizer-aggr/internal/errors"
)

// Error codes as constants
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeBusy           = "BUSY"
	ErrCodeCancelled      = "CANCELLED"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeStorage        = "STORAGE_ERROR"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// statusClientClosedRequest is the non-standard status logged when the
// client goes away mid-request.
const statusClientClosedRequest = 499

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Stage     string    `json:"stage,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Retryable bool      `json:"retryable"`
}

// respondJSON writes data as a JSON body with statusCode.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// statusFor maps a categorized error onto an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch errors.GetType(err) {
	case errors.NotFound:
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Busy:
		return http.StatusConflict, ErrCodeBusy
	case errors.Validation:
		return http.StatusBadRequest, ErrCodeInvalidRequest
	case errors.Cancelled:
		return statusClientClosedRequest, ErrCodeCancelled
	case errors.Timeout:
		return http.StatusGatewayTimeout, ErrCodeTimeout
	case errors.Storage:
		return http.StatusInternalServerError, ErrCodeStorage
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// writeError maps err onto a status and writes an ErrorResponse.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := errors.Categorize(err, "server")
	status, code := statusFor(e)
	writeErrorResponse(w, r, status, code, e.Message, e.Stage)
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message, stage string) {
	respondJSON(w, status, ErrorResponse{
		Code:      code,
		Message:   message,
		Stage:     stage,
		RequestID: requestID(r),
		Timestamp: time.Now().UTC(),
		Retryable: status == http.StatusConflict || status == http.StatusGatewayTimeout,
	})
}
