package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/giygas/cycletracker/entities"
	"github.com/giygas/cycletracker/logging"
)

// maxBodyBytes caps JSON request bodies independently of the server-wide limit
const maxBodyBytes = 64 << 10

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// RespondWithJSON writes payload as JSON with the given status code
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

// RespondWithError writes a JSON error response
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}

// respondWithDomainError maps the entities sentinels onto status codes
func respondWithDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entities.ErrInvalidParameter):
		RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, entities.ErrNoActiveCycle):
		RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, entities.ErrNotFound):
		RespondWithError(w, http.StatusNotFound, err.Error())
	default:
		logging.Error("Unhandled error", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON reads a single JSON object into dst. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("request body is empty: %w", entities.ErrInvalidParameter)
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes: %w", maxErr.Limit, entities.ErrInvalidParameter)
		default:
			return fmt.Errorf("malformed JSON: %v: %w", err, entities.ErrInvalidParameter)
		}
	}
	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object: %w", entities.ErrInvalidParameter)
	}
	return nil
}

// formatUptimeHuman formats duration into a human-readable string
func formatUptimeHuman(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string

	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}
