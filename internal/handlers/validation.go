package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"bankledger/internal/money"
	"bankledger/internal/validator"
)

const (
	maxBodyBytes = 1 << 20
	defaultLimit = 20
	maxLimit     = 100
)

var errInvalidAmount = errors.New("invalid amount")

// parseAmountMinor only checks the format. Sign and zero are business rules
// and are enforced by the ledger.
func parseAmountMinor(raw string) (int64, error) {
	amount, err := money.ParseMinor(raw)
	if err != nil {
		return 0, errInvalidAmount
	}
	return amount, nil
}

// decode reads and validates a JSON body, writing the 400 response itself.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	if err := validator.Struct(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid_request",
			"fields": validator.FieldErrors(err),
		})
		return false
	}
	return true
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// pagination reads page (1-based) and limit query parameters.
func pagination(r *http.Request) (limit, offset int) {
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit = parseInt(query.Get("limit"), defaultLimit)
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, (page - 1) * limit
}
