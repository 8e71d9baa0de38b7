package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"bankledger/internal/db"
	"bankledger/internal/events"
	"bankledger/internal/ledger"
	"bankledger/internal/money"
	"bankledger/internal/store"
	"bankledger/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	clientRequestConstraint = "movements_client_request_id_key"
	publishTimeout          = 5 * time.Second
)

// Engine is the only code path that changes an account balance. Each movement
// is validated, applied to the locked participant rows and persisted in one
// transaction.
type Engine struct {
	txRunner  db.TxRunner
	accounts  AccountStore
	movements MovementStore
	audit     AuditStore
	hub       BalanceHub
	publisher EventPublisher
	logger    *slog.Logger
}

func NewEngine(txRunner db.TxRunner, accounts AccountStore, movements MovementStore, audit AuditStore, hub BalanceHub, publisher EventPublisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		txRunner:  txRunner,
		accounts:  accounts,
		movements: movements,
		audit:     audit,
		hub:       hub,
		publisher: publisher,
		logger:    logger,
	}
}

type AccountBalance struct {
	AccountID    string
	Number       string
	OwnerID      string
	BalanceMinor int64
}

// Snapshot is the committed movement and the balances it left behind.
type Snapshot struct {
	Movement ledger.Movement
	Source   *AccountBalance
	Target   *AccountBalance
}

func (s Snapshot) Balances() []AccountBalance {
	balances := make([]AccountBalance, 0, 2)
	if s.Source != nil {
		balances = append(balances, *s.Source)
	}
	if s.Target != nil {
		balances = append(balances, *s.Target)
	}
	return balances
}

// Apply commits m on behalf of actorID (empty for system movements).
func (e *Engine) Apply(ctx context.Context, actorID string, m ledger.Movement) (Snapshot, error) {
	if err := m.Validate(); err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	err := e.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		snap, err = e.apply(ctx, tx, actorID, m)
		return err
	})
	if err != nil {
		err = classify(err)
		e.logger.Debug("movement rejected", "kind", m.Kind, "amount_minor", m.AmountMinor, "error", err)
		return Snapshot{}, err
	}
	e.notify(ctx, snap)
	return snap, nil
}

// apply runs inside the caller's transaction. Nothing is written before every
// rule has passed.
func (e *Engine) apply(ctx context.Context, tx store.Tx, actorID string, m ledger.Movement) (Snapshot, error) {
	if err := m.Validate(); err != nil {
		return Snapshot{}, err
	}
	ids := m.Participants()
	sort.Strings(ids)
	locked := make(map[string]store.Account, len(ids))
	for _, id := range ids {
		account, err := e.accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			if isNoRows(err) {
				return Snapshot{}, missingParticipant(m, id)
			}
			return Snapshot{}, err
		}
		locked[id] = account
	}

	if source := m.Source(); source != "" {
		if err := ledger.ValidateSufficientFunds(locked[source].Balance, m.AmountMinor); err != nil {
			return Snapshot{}, fmt.Errorf("%w: account %s", err, locked[source].Number)
		}
	}
	if target := m.Target(); target != "" && locked[target].Balance > math.MaxInt64-m.AmountMinor {
		return Snapshot{}, fmt.Errorf("%w: balance would overflow", ledger.ErrInvalidAmount)
	}

	var snap Snapshot
	for _, id := range ids {
		account := locked[id]
		next := account.Balance + m.Delta(id)
		if err := e.accounts.UpdateBalance(ctx, tx, id, next); err != nil {
			return Snapshot{}, err
		}
		balance := &AccountBalance{AccountID: id, Number: account.Number, OwnerID: account.OwnerID, BalanceMinor: next}
		if id == m.Source() {
			snap.Source = balance
		} else {
			snap.Target = balance
		}
	}

	m.ID = uuid.NewString()
	stored, err := e.movements.Insert(ctx, tx, m)
	if err != nil {
		if db.IsUniqueViolation(err, clientRequestConstraint) {
			return Snapshot{}, fmt.Errorf("%w: client request %s", ledger.ErrDuplicateRequest, derefString(m.ClientRequestID))
		}
		return Snapshot{}, err
	}
	snap.Movement = stored

	data, _ := json.Marshal(map[string]any{
		"kind":         stored.Kind,
		"amount_minor": stored.AmountMinor,
		"source_id":    stored.Source(),
		"target_id":    stored.Target(),
	})
	if err := e.audit.Log(ctx, tx, actorID, string(stored.Kind), "movement", stored.ID, string(data)); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func missingParticipant(m ledger.Movement, id string) error {
	if id != m.Source() && m.Kind.Debits() {
		return fmt.Errorf("%w: %s", ledger.ErrInvalidCounterparty, id)
	}
	return fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, id)
}

// notify runs after commit. Failures are logged and never reach the caller.
func (e *Engine) notify(ctx context.Context, snap Snapshot) {
	m := snap.Movement
	if e.hub != nil {
		for _, balance := range snap.Balances() {
			e.hub.BroadcastBalance(balance.OwnerID, websocket.BalanceUpdate{
				AccountNumber: balance.Number,
				Balance:       money.FormatMinor(balance.BalanceMinor),
				MovementID:    m.ID,
				Kind:          string(m.Kind),
			})
		}
	}
	if e.publisher == nil {
		return
	}
	event := events.MovementCommitted{
		MovementID:  m.ID,
		Kind:        string(m.Kind),
		AmountMinor: m.AmountMinor,
		Amount:      money.FormatMinor(m.AmountMinor),
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
	if snap.Source != nil {
		event.SourceAccount = snap.Source.Number
		event.SourceBalance = money.FormatMinor(snap.Source.BalanceMinor)
	}
	if snap.Target != nil {
		event.TargetAccount = snap.Target.Number
		event.TargetBalance = money.FormatMinor(snap.Target.BalanceMinor)
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.publisher.Publish(pubCtx, event); err != nil {
		e.logger.Warn("movement event not published", "movement_id", m.ID, "error", err)
	}
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
