package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

const (
	codeInvalidInput      = "invalid_input"
	codeNotFound          = "not_found"
	codeInsufficientSeats = "insufficient_seats"
	codeStorage           = "storage_unavailable"
	codeUnauthorized      = "unauthorized"
	codeRateLimited       = "rate_limited"
	codeInFlight          = "idempotency_in_progress"
	codeKeyReused         = "idempotency_key_reused"
	codeInternal          = "internal"

	retryAfterSeconds = "1"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type envelope struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Message: "success", Data: data})
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeError maps a domain error kind onto a status code. Storage failures
// are retryable and carry Retry-After; anything unclassified is a 500.
func writeError(w http.ResponseWriter, r *http.Request, logger observability.Logger, err error) {
	log := observability.LoggerFrom(r.Context(), logger)
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeErrorCode(w, http.StatusBadRequest, codeInvalidInput, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientSeats):
		writeErrorCode(w, http.StatusConflict, codeInsufficientSeats, err.Error())
	case errors.Is(err, domain.ErrStorage), errors.Is(err, domain.ErrTicketCodeTaken):
		log.WithError(err).Error("storage failure")
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeErrorCode(w, http.StatusServiceUnavailable, codeStorage, "storage unavailable, retry later")
	default:
		log.WithError(err).Error("unhandled error")
		writeErrorCode(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
