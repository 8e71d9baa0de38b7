package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"bankledger/internal/ledger"
	"bankledger/internal/validator"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{ledger.ErrInsufficientFunds, http.StatusBadRequest, "insufficient_funds"},
	{ledger.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
	{ledger.ErrInvalidCounterparty, http.StatusUnprocessableEntity, "invalid_counterparty"},
	{ledger.ErrStructuralMismatch, http.StatusBadRequest, "structural_mismatch"},
	{ledger.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{ledger.ErrUnauthorizedAccount, http.StatusForbidden, "account_access_denied"},
	{ledger.ErrDuplicateRequest, http.StatusConflict, "duplicate_request"},
	{ledger.ErrAccountNotEmpty, http.StatusConflict, "account_not_empty"},
	{ledger.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{ledger.ErrOwnerNotFound, http.StatusNotFound, "owner_not_found"},
	{ledger.ErrUnknownJob, http.StatusBadRequest, "unknown_job"},
	{ledger.ErrNoSalary, http.StatusUnprocessableEntity, "no_salary"},
	{validator.ErrInvalidPIN, http.StatusBadRequest, "invalid_pin"},
	{ledger.ErrConcurrencyConflict, http.StatusConflict, "concurrency_conflict"},
	{ledger.ErrStorageFailure, http.StatusInternalServerError, "storage_failure"},
}

func errorStatus(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable, "request_cancelled"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug("request rejected", "path", r.URL.Path, "code", code, "error", err)
	}
	if errors.Is(err, ledger.ErrConcurrencyConflict) {
		w.Header().Set("Retry-After", "1")
	}
	respondError(w, status, code)
}
