package handlers

import (
	"net/http"

	apperrors "github.com/3leaps/edison/internal/errors"
)

// HTTPErrorResponder writes err to w.
type HTTPErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// DefaultErrorResponder writes the JSON error envelope.
func DefaultErrorResponder(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

// responderOrDefault returns responder, or DefaultErrorResponder when nil.
func responderOrDefault(responder HTTPErrorResponder) HTTPErrorResponder {
	if responder == nil {
		return DefaultErrorResponder
	}
	return responder
}
