package transport

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ErrorEnvelope is the Gemini-shaped error body the Generative Language
// API itself returns, so a client speaking to quotaproxy sees the same
// shape whether the error originated upstream or at the proxy.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the fields of errorEnvelope.error.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// statusName maps an HTTP status code to the Gemini-style string the
// upstream API uses in error.status (e.g. "RESOURCE_EXHAUSTED",
// "PERMISSION_DENIED"). Unmapped codes fall back to "UNKNOWN".
func statusName(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "INVALID_ARGUMENT"
	case http.StatusForbidden:
		return "PERMISSION_DENIED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusTooManyRequests:
		return "RESOURCE_EXHAUSTED"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	case http.StatusGatewayTimeout:
		return "DEADLINE_EXCEEDED"
	case http.StatusInternalServerError:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// WriteError writes a Gemini-shaped error envelope with the given
// status code and message.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorEnvelope{
		Error: ErrorDetail{
			Code:    statusCode,
			Message: message,
			Status:  statusName(statusCode),
		},
	})
}

// WriteNoCapacityError writes the 503 returned when every (model, key)
// pair in the fallback chain is unavailable.
func WriteNoCapacityError(w http.ResponseWriter) {
	WriteError(w, http.StatusServiceUnavailable, "All API keys and models are currently rate-limited or unavailable.")
}

// WriteRetriesExhaustedError writes the 503 returned after the retry
// loop exhausts its attempt budget without a non-429 response.
func WriteRetriesExhaustedError(w http.ResponseWriter) {
	WriteError(w, http.StatusServiceUnavailable, "Request failed after multiple retries due to rate limiting.")
}

// WriteForbiddenError writes the 403 returned when the upstream rejects
// a key as invalid or disabled.
func WriteForbiddenError(w http.ResponseWriter) {
	WriteError(w, http.StatusForbidden, "Forbidden - API key may be invalid or disabled.")
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response body")
	}
}
