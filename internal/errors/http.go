// Package errors renders API errors as a JSON envelope:
//
//	{"error": {"code": "NOT_FOUND", "message": "...", "request_id": "...", "details": {...}}}
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/3leaps/edison/pkg/jobs"
)

// Error codes.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeConflict           = "CONFLICT"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// ErrorBody is the content of the envelope.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the envelope written for every error response.
type HTTPErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// HTTPError carries an explicit status and code.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *HTTPError) Error() string { return e.Message }

// New returns an HTTPError.
func New(status int, code, message string) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message}
}

// WithDetails returns a copy of e carrying details.
func (e *HTTPError) WithDetails(details map[string]any) *HTTPError {
	c := *e
	c.Details = details
	return &c
}

// Classify maps err to a status code and error code.
func Classify(err error) (int, string) {
	var httpErr *HTTPError
	var cfgErr *jobs.ConfigError
	switch {
	case stderrors.As(err, &httpErr):
		return httpErr.Status, httpErr.Code
	case stderrors.Is(err, jobs.ErrJobNotFound), stderrors.Is(err, jobs.ErrUnknownJobType):
		return http.StatusNotFound, CodeNotFound
	case stderrors.Is(err, jobs.ErrJobAlreadyRunning), stderrors.Is(err, jobs.ErrJobBlocked):
		return http.StatusConflict, CodeConflict
	case stderrors.As(err, &cfgErr):
		return http.StatusBadRequest, CodeBadRequest
	case stderrors.Is(err, jobs.ErrExecutorClosed):
		return http.StatusServiceUnavailable, CodeServiceUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// RespondWithError writes err as an envelope with the classified status.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := Classify(err)
	var details map[string]any
	var httpErr *HTTPError
	if stderrors.As(err, &httpErr) {
		details = httpErr.Details
	}
	WriteError(w, r, status, code, err.Error(), details)
}

// WriteError writes an envelope.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	body := HTTPErrorResponse{Error: ErrorBody{
		Code:    code,
		Message: message,
		Details: details,
	}}
	if r != nil {
		body.Error.RequestID = middleware.GetReqID(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
