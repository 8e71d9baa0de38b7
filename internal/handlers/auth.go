package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"bankledger/internal/auth"
	"bankledger/internal/middleware"
	"bankledger/internal/money"
	"bankledger/internal/services"
	"bankledger/internal/validator"
)

type registerRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	TaxCode   string `json:"tax_code" validate:"required"`
	PIN       string `json:"pin" validate:"required,pin"`
	Job       string `json:"job" validate:"omitempty,max=100"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	if err := validator.ValidateTaxCode(strings.ToUpper(strings.TrimSpace(req.TaxCode))); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_tax_code")
		return
	}
	owner, err := h.owners.Register(r.Context(), services.RegisterRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		TaxCode:   req.TaxCode,
		PIN:       req.PIN,
		Job:       req.Job,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, owner.ID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"holder_code": owner.HolderCode,
		"token":       token,
	})
}

type loginRequest struct {
	HolderCode string `json:"holder_code" validate:"required,holder_code"`
	PIN        string `json:"pin" validate:"required"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	owner, err := h.owners.Authenticate(r.Context(), req.HolderCode, req.PIN)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, owner.ID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"token": token,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	profile, err := h.owners.Get(r.Context(), ownerID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	response := map[string]any{
		"id":          profile.Owner.ID,
		"holder_code": profile.Owner.HolderCode,
		"first_name":  profile.Owner.FirstName,
		"last_name":   profile.Owner.LastName,
		"tax_code":    profile.Owner.TaxCode,
		"created_at":  profile.Owner.CreatedAt,
	}
	if profile.Job != nil {
		response["job"] = map[string]string{
			"name":           profile.Job.Name,
			"monthly_salary": profile.Job.MonthlySalary.StringFixed(2),
		}
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *Handler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.owners.Delete(r.Context(), ownerID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := pagination(r)
	entries, err := h.owners.Activity(r.Context(), ownerID, limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	normalized := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{
			"id":          entry.ID,
			"action":      entry.Action,
			"entity_type": entry.EntityType,
			"entity_id":   entry.EntityID,
			"created_at":  entry.CreatedAt,
		}
		if entry.Data != "" {
			item["data"] = json.RawMessage(entry.Data)
		}
		normalized = append(normalized, item)
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.owners.Jobs(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	normalized := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		salary, err := money.FromDecimal(job.MonthlySalary)
		if err != nil {
			h.logger.Warn("job salary not representable", "job", job.Name, "error", err)
			continue
		}
		normalized = append(normalized, map[string]any{
			"name":           job.Name,
			"monthly_salary": money.FormatMinor(salary),
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

// WSBalances authenticates from the token query parameter or the
// Authorization header, since browsers cannot set headers on websocket
// upgrades.
func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	h.balances.Serve(w, r, claims.OwnerID)
}
