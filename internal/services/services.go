package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bankledger/internal/db"
	"bankledger/internal/events"
	"bankledger/internal/ledger"
	"bankledger/internal/store"
	"bankledger/internal/websocket"
)

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, id, number, ownerID string, createdAt time.Time) error
	NumberExists(ctx context.Context, q store.Getter, number string) (bool, error)
	GetByID(ctx context.Context, accountID string) (store.Account, error)
	GetByNumber(ctx context.Context, number string) (store.Account, error)
	ListByOwner(ctx context.Context, ownerID string) ([]store.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (store.Account, error)
	ListByOwnerForUpdate(ctx context.Context, tx store.Selecter, ownerID string) ([]store.Account, error)
	UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance int64) error
	LatestOpenedAt(ctx context.Context, tx store.Getter, ownerID string) (*time.Time, error)
	DeleteByOwner(ctx context.Context, tx store.Execer, ownerID string) (int64, error)
}

type MovementStore interface {
	Insert(ctx context.Context, tx store.Getter, m ledger.Movement) (ledger.Movement, error)
	ListForAccount(ctx context.Context, accountID string, limit, offset int) ([]ledger.Movement, error)
	AllForAccount(ctx context.Context, q store.Selecter, accountID string) ([]ledger.Movement, error)
}

type OwnerStore interface {
	Create(ctx context.Context, tx store.Execer, owner store.Owner) error
	HolderCodeExists(ctx context.Context, q store.Getter, code string) (bool, error)
	GetByHolderCode(ctx context.Context, code string) (store.Owner, error)
	GetByID(ctx context.Context, ownerID string) (store.Owner, error)
	GetForUpdate(ctx context.Context, tx store.Getter, ownerID string) (store.Owner, error)
	Delete(ctx context.Context, tx store.Execer, ownerID string) (int64, error)
}

type JobStore interface {
	GetByName(ctx context.Context, name string) (store.Job, error)
	GetByID(ctx context.Context, jobID int64) (store.Job, error)
	List(ctx context.Context) ([]store.Job, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	ListByActor(ctx context.Context, ownerID string, limit, offset int) ([]store.AuditEntry, error)
}

type BalanceHub interface {
	BroadcastBalance(ownerID string, update websocket.BalanceUpdate)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.MovementCommitted) error
}

// classify maps an error leaving a unit of work onto the ledger error set.
// Business errors and cancellation pass through unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case ledger.IsBusinessError(err),
		errors.Is(err, ledger.ErrConcurrencyConflict),
		errors.Is(err, ledger.ErrStorageFailure),
		errors.Is(err, context.Canceled):
		return err
	case db.IsConflict(err):
		return fmt.Errorf("%w: %w", ledger.ErrConcurrencyConflict, err)
	default:
		return fmt.Errorf("%w: %w", ledger.ErrStorageFailure, err)
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
