package server

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the closed error envelope of spec §7: {"error":{code,
// message, details?}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code plus a human message.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// DataResponse wraps every success payload in {"data": ...}.
type DataResponse struct {
	Data any `json:"data"`
}

// Error codes, the full closed taxonomy of spec §7.
const (
	ErrCodeInvalidRequest        = "invalid_request"
	ErrCodeInvalidState          = "invalid_state"
	ErrCodeNotFound              = "not_found"
	ErrCodeForbiddenPath         = "forbidden_path"
	ErrCodeSchedulerAPIDisabled  = "scheduler_api_disabled"
	ErrCodeSessionBusy           = "session_busy"
	ErrCodeRateLimitExceeded     = "rate_limit_exceeded"
	ErrCodeValidationError       = "validation_error"
	ErrCodeNotInitialized        = "not_initialized"
	ErrCodeInternalError         = "internal_error"
)

// writeData writes a success payload wrapped in the {"data": ...} envelope.
func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(DataResponse{Data: data})
}

// writeError writes a closed-taxonomy error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// writeErrorWithDetails writes a closed-taxonomy error response with extra
// machine-readable details.
func writeErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorDetail{Code: code, Message: message, Details: details}})
}

// statusForCode maps a closed error code to its mandated HTTP status.
func statusForCode(code string) int {
	switch code {
	case ErrCodeInvalidRequest, ErrCodeInvalidState:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeForbiddenPath, ErrCodeSchedulerAPIDisabled:
		return http.StatusForbidden
	case ErrCodeSessionBusy:
		return http.StatusConflict
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrCodeValidationError:
		return http.StatusUnprocessableEntity
	case ErrCodeNotInitialized, ErrCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeCodedError is the single call site most handlers use: looks up the
// mandated status for code and writes the envelope.
func writeCodedError(w http.ResponseWriter, code, message string) {
	writeError(w, statusForCode(code), code, message)
}
