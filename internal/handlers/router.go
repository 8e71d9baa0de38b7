package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"bankledger/internal/config"
	"bankledger/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	cfg         config.Config
	owners      OwnerService
	accounts    AccountService
	teller      Teller
	balances    BalanceStream
	idempotency middleware.IdempotencyStore
	logger      *slog.Logger
}

// New wires the HTTP surface. idempotency may be nil when no cache is configured.
func New(cfg config.Config, owners OwnerService, accounts AccountService, teller Teller, balances BalanceStream, idempotency middleware.IdempotencyStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:         cfg,
		owners:      owners,
		accounts:    accounts,
		teller:      teller,
		balances:    balances,
		idempotency: idempotency,
		logger:      logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(h.cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", middleware.IdempotencyHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})
	router.Get("/jobs", h.ListJobs)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))

		r.Get("/me", h.Me)
		r.Delete("/me", h.DeleteMe)
		r.Get("/me/activity", h.Activity)

		r.Get("/accounts", h.ListAccounts)
		r.Post("/accounts", h.OpenAccount)
		r.Get("/accounts/self-check", h.SelfCheck)
		r.Get("/accounts/{number}/balance", h.GetBalance)
		r.Get("/accounts/{number}/movements", h.ListMovements)

		r.Route("/movements", func(r chi.Router) {
			r.Use(middleware.Idempotency(h.idempotency, h.logger))
			r.Post("/transfer", h.Transfer)
			r.Post("/payment", h.Payment)
			r.Post("/withdrawal", h.Withdrawal)
			r.Post("/deposit", h.Deposit)
			r.Post("/salary", h.Salary)
		})
	})
	router.Get("/ws/balances", h.WSBalances)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

func allowedOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
