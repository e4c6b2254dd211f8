package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonwraymond/ledgerops/ledger"
	"github.com/jonwraymond/ledgerops/resilience"
)

// Response is the envelope of every /api response.
type Response struct {
	Message string        `json:"message"`
	Success bool          `json:"success"`
	Count   int           `json:"count"`
	Data    any           `json:"data"`
	Errors  []ErrorDetail `json:"errors,omitempty"`
}

// ErrorDetail describes one failure. ID is set when the failure concerns
// a specific entry.
type ErrorDetail struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

func ok[T any](message string, data []T) Response {
	if data == nil {
		data = []T{}
	}
	return Response{Message: message, Success: true, Count: len(data), Data: data}
}

func failure(message string, err error, ids ...string) Response {
	resp := Response{Message: message, Data: []any{}}
	if len(ids) == 0 {
		resp.Errors = []ErrorDetail{{Error: err.Error()}}
		return resp
	}
	for _, id := range ids {
		resp.Errors = append(resp.Errors, ErrorDetail{ID: id, Error: err.Error()})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidEntry),
		errors.Is(err, ledger.ErrInvalidType),
		errors.Is(err, ledger.ErrInvalidRange),
		errors.Is(err, ledger.ErrEmptyIDs),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, resilience.ErrBulkheadFull),
		errors.Is(err, resilience.ErrAdmissionTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, resilience.ErrAdmissionRejected):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
