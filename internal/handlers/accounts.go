package handlers

import (
	"net/http"

	"bankledger/internal/middleware"
	"bankledger/internal/money"
	"bankledger/internal/store"

	"github.com/go-chi/chi/v5"
)

func accountJSON(account store.Account) map[string]any {
	return map[string]any{
		"number":     account.Number,
		"balance":    money.FormatMinor(account.Balance),
		"created_at": account.CreatedAt,
	}
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	accounts, err := h.accounts.ListForOwner(r.Context(), ownerID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	normalized := make([]map[string]any, 0, len(accounts))
	for _, account := range accounts {
		normalized = append(normalized, accountJSON(account))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	opened, err := h.accounts.Open(r.Context(), ownerID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	response := accountJSON(opened.Account)
	if opened.Bonus != nil {
		response["bonus"] = movementJSON(*opened.Bonus)
	}
	respondJSON(w, http.StatusCreated, response)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	account, err := h.accounts.Get(r.Context(), ownerID, chi.URLParam(r, "number"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"number":  account.Number,
		"balance": money.FormatMinor(account.Balance),
	})
}

func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := pagination(r)
	lines, err := h.accounts.Movements(r.Context(), ownerID, chi.URLParam(r, "number"), limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	normalized := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		normalized = append(normalized, map[string]any{
			"id":           line.Movement.ID,
			"kind":         line.Movement.Kind,
			"amount":       money.FormatMinor(line.SignedMinor),
			"description":  line.Movement.Description,
			"counterparty": line.CounterpartyNumber,
			"created_at":   line.Movement.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	report, err := h.accounts.SelfCheck(r.Context(), ownerID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	response := make([]map[string]any, 0, len(report))
	for _, item := range report {
		response = append(response, map[string]any{
			"number":         item.Number,
			"stored_balance": money.FormatMinor(item.StoredMinor),
			"ledger_sum":     money.FormatMinor(item.DerivedMinor),
			"difference":     money.FormatMinor(item.StoredMinor - item.DerivedMinor),
			"consistent":     item.Consistent(),
		})
	}
	respondJSON(w, http.StatusOK, response)
}
