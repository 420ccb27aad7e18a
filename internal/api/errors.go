package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"srcweb/internal/errors"
)

// ErrorResponse represents an HTTP error response
type ErrorResponse struct {
	Error          string             `json:"error"`
	Code           string             `json:"code"`
	Details        interface{}        `json:"details,omitempty"`
	SuggestedFixes []errors.FixAction `json:"suggestedFixes,omitempty"`
}

// WriteError writes an error response with an explicit status.
func WriteError(w http.ResponseWriter, err error, status int) {
	resp := ErrorResponse{
		Error: err.Error(),
		Code:  string(errors.InternalError),
	}

	var e *errors.Error
	if stderrors.As(err, &e) {
		resp.Error = e.Message
		resp.Code = string(e.Code)
		resp.Details = e.Details
		resp.SuggestedFixes = e.SuggestedFixes
	}

	WriteJSON(w, resp, status)
}

// WriteErr writes err with the status its code maps to.
func WriteErr(w http.ResponseWriter, err error) {
	WriteError(w, err, MapErrorToStatus(errors.CodeOf(err)))
}

// MapErrorToStatus maps error codes to HTTP status codes
func MapErrorToStatus(code errors.ErrorCode) int {
	switch code {
	case errors.NotFound:
		return http.StatusNotFound // 404
	case errors.IndexMissing:
		return http.StatusServiceUnavailable // 503
	case errors.InvalidArgument, errors.ParseError:
		return http.StatusBadRequest // 400
	case errors.ProcessError:
		return http.StatusBadGateway // 502
	case errors.InvariantViolation:
		return http.StatusUnprocessableEntity // 422
	case errors.InternalError:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// BadRequest writes a 400 Bad Request error
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, errors.New(errors.InvalidArgument, message, nil), http.StatusBadRequest)
}

// NotFound writes a 404 Not Found error
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, errors.New(errors.NotFound, message, nil), http.StatusNotFound)
}

// InternalError writes a 500 Internal Server Error
func InternalError(w http.ResponseWriter, message string, err error) {
	WriteError(w, errors.New(errors.InternalError, message, err), http.StatusInternalServerError)
}

// MethodNotAllowed writes a 405 with the allowed method.
func MethodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	WriteError(w, errors.Newf(errors.InvalidArgument, "method not allowed, use %s", allowed), http.StatusMethodNotAllowed)
}
