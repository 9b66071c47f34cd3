package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"
)

// Error is a client-facing failure with its HTTP status.
type Error struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

func badRequest(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg}
}

type errorBody struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, errorBody{Error: message})
}

// respondErr maps err to a response. Anything that is not an *Error is
// logged and reported as a generic 500.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		respondError(w, r, apiErr.Status, apiErr.Message)
		return
	}
	hlog.FromRequest(r).Error().Err(err).Msg("Request failed")
	respondError(w, r, http.StatusInternalServerError, "Internal server error")
}
