package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bankledger/internal/auth"
	"bankledger/internal/config"
	"bankledger/internal/middleware"
	"bankledger/internal/services"
	"bankledger/internal/store"
)

type stubOwnerService struct {
	registerFn     func(ctx context.Context, req services.RegisterRequest) (store.Owner, error)
	authenticateFn func(ctx context.Context, holderCode, pin string) (store.Owner, error)
	getFn          func(ctx context.Context, ownerID string) (services.Profile, error)
	deleteFn       func(ctx context.Context, ownerID string) error
	activityFn     func(ctx context.Context, ownerID string, limit, offset int) ([]store.AuditEntry, error)
	jobsFn         func(ctx context.Context) ([]store.Job, error)
}

func (s stubOwnerService) Register(ctx context.Context, req services.RegisterRequest) (store.Owner, error) {
	if s.registerFn == nil {
		return store.Owner{}, nil
	}
	return s.registerFn(ctx, req)
}

func (s stubOwnerService) Authenticate(ctx context.Context, holderCode, pin string) (store.Owner, error) {
	if s.authenticateFn == nil {
		return store.Owner{}, nil
	}
	return s.authenticateFn(ctx, holderCode, pin)
}

func (s stubOwnerService) Get(ctx context.Context, ownerID string) (services.Profile, error) {
	if s.getFn == nil {
		return services.Profile{}, nil
	}
	return s.getFn(ctx, ownerID)
}

func (s stubOwnerService) Delete(ctx context.Context, ownerID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, ownerID)
}

func (s stubOwnerService) Activity(ctx context.Context, ownerID string, limit, offset int) ([]store.AuditEntry, error) {
	if s.activityFn == nil {
		return nil, nil
	}
	return s.activityFn(ctx, ownerID, limit, offset)
}

func (s stubOwnerService) Jobs(ctx context.Context) ([]store.Job, error) {
	if s.jobsFn == nil {
		return nil, nil
	}
	return s.jobsFn(ctx)
}

type stubAccountService struct {
	openFn      func(ctx context.Context, ownerID string) (services.OpenedAccount, error)
	listFn      func(ctx context.Context, ownerID string) ([]store.Account, error)
	getFn       func(ctx context.Context, ownerID, number string) (store.Account, error)
	movementsFn func(ctx context.Context, ownerID, number string, limit, offset int) ([]services.StatementLine, error)
	selfCheckFn func(ctx context.Context, ownerID string) ([]services.Reconciliation, error)
}

func (s stubAccountService) Open(ctx context.Context, ownerID string) (services.OpenedAccount, error) {
	if s.openFn == nil {
		return services.OpenedAccount{}, nil
	}
	return s.openFn(ctx, ownerID)
}

func (s stubAccountService) ListForOwner(ctx context.Context, ownerID string) ([]store.Account, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, ownerID)
}

func (s stubAccountService) Get(ctx context.Context, ownerID, number string) (store.Account, error) {
	if s.getFn == nil {
		return store.Account{}, nil
	}
	return s.getFn(ctx, ownerID, number)
}

func (s stubAccountService) Movements(ctx context.Context, ownerID, number string, limit, offset int) ([]services.StatementLine, error) {
	if s.movementsFn == nil {
		return nil, nil
	}
	return s.movementsFn(ctx, ownerID, number, limit, offset)
}

func (s stubAccountService) SelfCheck(ctx context.Context, ownerID string) ([]services.Reconciliation, error) {
	if s.selfCheckFn == nil {
		return nil, nil
	}
	return s.selfCheckFn(ctx, ownerID)
}

type stubTeller struct {
	transferFn func(ctx context.Context, req services.TransferRequest) (services.Snapshot, error)
	paymentFn  func(ctx context.Context, req services.TransferRequest) (services.Snapshot, error)
	depositFn  func(ctx context.Context, req services.CashRequest) (services.Snapshot, error)
	withdrawFn func(ctx context.Context, req services.CashRequest) (services.Snapshot, error)
	salaryFn   func(ctx context.Context, req services.SalaryRequest) (services.Snapshot, error)
}

func (s stubTeller) Transfer(ctx context.Context, req services.TransferRequest) (services.Snapshot, error) {
	if s.transferFn == nil {
		return services.Snapshot{}, nil
	}
	return s.transferFn(ctx, req)
}

func (s stubTeller) Payment(ctx context.Context, req services.TransferRequest) (services.Snapshot, error) {
	if s.paymentFn == nil {
		return services.Snapshot{}, nil
	}
	return s.paymentFn(ctx, req)
}

func (s stubTeller) Deposit(ctx context.Context, req services.CashRequest) (services.Snapshot, error) {
	if s.depositFn == nil {
		return services.Snapshot{}, nil
	}
	return s.depositFn(ctx, req)
}

func (s stubTeller) Withdraw(ctx context.Context, req services.CashRequest) (services.Snapshot, error) {
	if s.withdrawFn == nil {
		return services.Snapshot{}, nil
	}
	return s.withdrawFn(ctx, req)
}

func (s stubTeller) PaySalary(ctx context.Context, req services.SalaryRequest) (services.Snapshot, error) {
	if s.salaryFn == nil {
		return services.Snapshot{}, nil
	}
	return s.salaryFn(ctx, req)
}

type stubBalanceStream struct {
	serveFn func(w http.ResponseWriter, r *http.Request, ownerID string)
}

func (s stubBalanceStream) Serve(w http.ResponseWriter, r *http.Request, ownerID string) {
	if s.serveFn != nil {
		s.serveFn(w, r, ownerID)
	}
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
	}
}

func newTestHandler(owners OwnerService, accounts AccountService, teller Teller, idempotency middleware.IdempotencyStore) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(testConfig(), owners, accounts, teller, stubBalanceStream{}, idempotency, logger)
}

// serve sends a request through the full router, authenticated as ownerID
// unless ownerID is empty.
func serve(t *testing.T, handler *Handler, method, path, body, ownerID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if ownerID != "" {
		token, err := auth.GenerateToken("secret", ownerID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}
