package handlers

import (
	"context"
	"net/http"

	"bankledger/internal/services"
	"bankledger/internal/store"
)

type OwnerService interface {
	Register(ctx context.Context, req services.RegisterRequest) (store.Owner, error)
	Authenticate(ctx context.Context, holderCode, pin string) (store.Owner, error)
	Get(ctx context.Context, ownerID string) (services.Profile, error)
	Delete(ctx context.Context, ownerID string) error
	Activity(ctx context.Context, ownerID string, limit, offset int) ([]store.AuditEntry, error)
	Jobs(ctx context.Context) ([]store.Job, error)
}

type AccountService interface {
	Open(ctx context.Context, ownerID string) (services.OpenedAccount, error)
	ListForOwner(ctx context.Context, ownerID string) ([]store.Account, error)
	Get(ctx context.Context, ownerID, number string) (store.Account, error)
	Movements(ctx context.Context, ownerID, number string, limit, offset int) ([]services.StatementLine, error)
	SelfCheck(ctx context.Context, ownerID string) ([]services.Reconciliation, error)
}

type Teller interface {
	Transfer(ctx context.Context, req services.TransferRequest) (services.Snapshot, error)
	Payment(ctx context.Context, req services.TransferRequest) (services.Snapshot, error)
	Deposit(ctx context.Context, req services.CashRequest) (services.Snapshot, error)
	Withdraw(ctx context.Context, req services.CashRequest) (services.Snapshot, error)
	PaySalary(ctx context.Context, req services.SalaryRequest) (services.Snapshot, error)
}

// BalanceStream upgrades a request into a live balance session for ownerID.
type BalanceStream interface {
	Serve(w http.ResponseWriter, r *http.Request, ownerID string)
}
