package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/knikam3027/jnj/pkg/api"
)

// statusByType holds the HTTP status of each rejection category. Unknown
// categories are server errors.
var statusByType = map[api.ErrorType]int{
	api.ErrorTypeInvalidRequest:  http.StatusBadRequest,
	api.ErrorTypeUnauthorized:    http.StatusUnauthorized,
	api.ErrorTypeNotFound:        http.StatusNotFound,
	api.ErrorTypeTooManyRequests: http.StatusTooManyRequests,
}

// HTTPStatusFromError returns the HTTP status for a request rejected before
// it reached the pipeline. Size and content-type rejections pick their own
// status in the HTTP adapter.
func HTTPStatusFromError(err *api.APIError) int {
	if code, ok := statusByType[err.Type]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse writes {"error": {...}} with the given status.
// Rejections are never cached.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr}); err != nil {
		slog.Debug("writing error response", "error", err)
	}
}

// WriteAPIError is WriteErrorResponse with the status derived from the
// error type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}
