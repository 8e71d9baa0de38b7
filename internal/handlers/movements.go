package handlers

import (
	"context"
	"net/http"

	"bankledger/internal/middleware"
	"bankledger/internal/money"
	"bankledger/internal/services"
)

func movementJSON(snap services.Snapshot) map[string]any {
	m := snap.Movement
	response := map[string]any{
		"movement_id": m.ID,
		"kind":        m.Kind,
		"amount":      money.FormatMinor(m.AmountMinor),
		"description": m.Description,
		"created_at":  m.CreatedAt,
	}
	if m.ClientRequestID != nil {
		response["client_request_id"] = *m.ClientRequestID
	}
	if snap.Source != nil {
		response["source_account"] = snap.Source.Number
		response["source_balance"] = money.FormatMinor(snap.Source.BalanceMinor)
	}
	if snap.Target != nil {
		response["target_account"] = snap.Target.Number
		response["target_balance"] = money.FormatMinor(snap.Target.BalanceMinor)
	}
	return response
}

type transferRequest struct {
	FromAccount     string  `json:"from_account" validate:"required,account_number"`
	ToAccount       string  `json:"to_account" validate:"required,account_number"`
	Amount          string  `json:"amount" validate:"required"`
	Description     string  `json:"description" validate:"max=255"`
	ClientRequestID *string `json:"client_request_id" validate:"omitempty,min=1,max=64"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	h.twoSided(w, r, h.teller.Transfer)
}

func (h *Handler) Payment(w http.ResponseWriter, r *http.Request) {
	h.twoSided(w, r, h.teller.Payment)
}

func (h *Handler) twoSided(w http.ResponseWriter, r *http.Request, submit func(ctx context.Context, req services.TransferRequest) (services.Snapshot, error)) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transferRequest
	if !decode(w, r, &req) {
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	snap, err := submit(r.Context(), services.TransferRequest{
		OwnerID:         ownerID,
		FromNumber:      req.FromAccount,
		ToNumber:        req.ToAccount,
		AmountMinor:     amountMinor,
		Description:     req.Description,
		ClientRequestID: req.ClientRequestID,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, movementJSON(snap))
}

type cashRequest struct {
	Account         string  `json:"account" validate:"required,account_number"`
	Amount          string  `json:"amount" validate:"required"`
	Description     string  `json:"description" validate:"max=255"`
	ClientRequestID *string `json:"client_request_id" validate:"omitempty,min=1,max=64"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.cash(w, r, h.teller.Deposit)
}

func (h *Handler) Withdrawal(w http.ResponseWriter, r *http.Request) {
	h.cash(w, r, h.teller.Withdraw)
}

func (h *Handler) cash(w http.ResponseWriter, r *http.Request, submit func(ctx context.Context, req services.CashRequest) (services.Snapshot, error)) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req cashRequest
	if !decode(w, r, &req) {
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	snap, err := submit(r.Context(), services.CashRequest{
		OwnerID:         ownerID,
		Number:          req.Account,
		AmountMinor:     amountMinor,
		Description:     req.Description,
		ClientRequestID: req.ClientRequestID,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, movementJSON(snap))
}

type salaryRequest struct {
	Account         string  `json:"account" validate:"required,account_number"`
	ClientRequestID *string `json:"client_request_id" validate:"omitempty,min=1,max=64"`
}

func (h *Handler) Salary(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req salaryRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.teller.PaySalary(r.Context(), services.SalaryRequest{
		OwnerID:         ownerID,
		Number:          req.Account,
		ClientRequestID: req.ClientRequestID,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, movementJSON(snap))
}
