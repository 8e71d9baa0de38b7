package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"bankledger/internal/db"
	"bankledger/internal/identifiers"
	"bankledger/internal/ledger"
	"bankledger/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	accountNumberConstraint = "accounts_number_key"
	defaultPageSize         = 20
	maxPageSize             = 100
	welcomeBonusDescription = "Welcome bonus"
)

type AccountServiceConfig struct {
	// OpeningWindow is the minimum gap between two accounts of one owner.
	OpeningWindow     time.Duration
	WelcomeBonusMinor int64
	Numbers           identifiers.Generator
}

type AccountService struct {
	txRunner  db.TxRunner
	engine    *Engine
	owners    OwnerStore
	accounts  AccountStore
	movements MovementStore
	audit     AuditStore
	cfg       AccountServiceConfig
	now       func() time.Time
	logger    *slog.Logger
}

func NewAccountService(txRunner db.TxRunner, engine *Engine, owners OwnerStore, accounts AccountStore, movements MovementStore, audit AuditStore, cfg AccountServiceConfig, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		txRunner:  txRunner,
		engine:    engine,
		owners:    owners,
		accounts:  accounts,
		movements: movements,
		audit:     audit,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

type OpenedAccount struct {
	Account store.Account
	// Bonus is set when the account received the welcome bonus.
	Bonus *Snapshot
}

// Open creates a new account for ownerID. The first account of an owner is
// credited with the welcome bonus in the same transaction.
func (s *AccountService) Open(ctx context.Context, ownerID string) (OpenedAccount, error) {
	var opened OpenedAccount
	err := s.cfg.Numbers.InsertUnique(ctx, func(ctx context.Context) error {
		opened = OpenedAccount{}
		return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			result, err := s.open(ctx, tx, ownerID)
			if err != nil {
				return err
			}
			opened = result
			return nil
		})
	}, func(err error) bool {
		return db.IsUniqueViolation(err, accountNumberConstraint)
	})
	if err != nil {
		return OpenedAccount{}, classify(err)
	}
	if opened.Bonus != nil {
		s.engine.notify(ctx, *opened.Bonus)
	}
	s.logger.Info("account opened", "owner_id", ownerID, "number", opened.Account.Number)
	return opened, nil
}

func (s *AccountService) open(ctx context.Context, tx store.Tx, ownerID string) (OpenedAccount, error) {
	if _, err := s.owners.GetForUpdate(ctx, tx, ownerID); err != nil {
		if isNoRows(err) {
			return OpenedAccount{}, ledger.ErrOwnerNotFound
		}
		return OpenedAccount{}, err
	}
	latest, err := s.accounts.LatestOpenedAt(ctx, tx, ownerID)
	if err != nil {
		return OpenedAccount{}, err
	}
	now := s.now()
	if latest != nil && s.cfg.OpeningWindow > 0 {
		if next := latest.Add(s.cfg.OpeningWindow); now.Before(next) {
			return OpenedAccount{}, fmt.Errorf("%w: next account after %s", ledger.ErrRateLimited, next.UTC().Format(time.RFC3339))
		}
	}
	number, err := s.cfg.Numbers.Next(ctx, func(ctx context.Context, candidate string) (bool, error) {
		return s.accounts.NumberExists(ctx, tx, candidate)
	})
	if err != nil {
		return OpenedAccount{}, err
	}
	accountID := uuid.NewString()
	if err := s.accounts.Create(ctx, tx, accountID, number, ownerID, now); err != nil {
		return OpenedAccount{}, err
	}
	data, _ := json.Marshal(map[string]string{"number": number})
	if err := s.audit.Log(ctx, tx, ownerID, "open", "account", accountID, string(data)); err != nil {
		return OpenedAccount{}, err
	}

	var opened OpenedAccount
	if latest == nil && s.cfg.WelcomeBonusMinor > 0 {
		snap, err := s.engine.apply(ctx, tx, "", ledger.NewBonus(s.cfg.WelcomeBonusMinor, welcomeBonusDescription, accountID))
		if err != nil {
			return OpenedAccount{}, err
		}
		opened.Bonus = &snap
	}
	account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return OpenedAccount{}, err
	}
	opened.Account = account
	return opened, nil
}

func (s *AccountService) ListForOwner(ctx context.Context, ownerID string) ([]store.Account, error) {
	accounts, err := s.accounts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, classify(err)
	}
	return accounts, nil
}

// Get resolves an account number owned by ownerID.
func (s *AccountService) Get(ctx context.Context, ownerID, number string) (store.Account, error) {
	account, err := s.accounts.GetByNumber(ctx, number)
	if err != nil {
		if isNoRows(err) {
			return store.Account{}, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, number)
		}
		return store.Account{}, classify(err)
	}
	if account.OwnerID != ownerID {
		return store.Account{}, ledger.ErrUnauthorizedAccount
	}
	return account, nil
}

type StatementLine struct {
	Movement ledger.Movement
	// SignedMinor is the effect on the statement's account.
	SignedMinor        int64
	CounterpartyNumber string
}

// Movements lists the account's movements newest first.
func (s *AccountService) Movements(ctx context.Context, ownerID, number string, limit, offset int) ([]StatementLine, error) {
	account, err := s.Get(ctx, ownerID, number)
	if err != nil {
		return nil, err
	}
	movements, err := s.movements.ListForAccount(ctx, account.ID, clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, classify(err)
	}
	numbers := map[string]string{account.ID: account.Number}
	lines := make([]StatementLine, 0, len(movements))
	for _, m := range movements {
		line := StatementLine{Movement: m, SignedMinor: m.Delta(account.ID)}
		counterparty := m.Target()
		if counterparty == account.ID {
			counterparty = m.Source()
		}
		if counterparty != "" {
			line.CounterpartyNumber = s.numberOf(ctx, numbers, counterparty)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// numberOf returns "" for accounts that no longer exist.
func (s *AccountService) numberOf(ctx context.Context, cache map[string]string, accountID string) string {
	if number, ok := cache[accountID]; ok {
		return number
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if !isNoRows(err) {
			s.logger.Warn("counterparty lookup failed", "account_id", accountID, "error", err)
		}
		cache[accountID] = ""
		return ""
	}
	cache[accountID] = account.Number
	return account.Number
}

type Reconciliation struct {
	AccountID    string
	Number       string
	StoredMinor  int64
	DerivedMinor int64
}

func (r Reconciliation) Consistent() bool {
	return r.StoredMinor == r.DerivedMinor
}

// SelfCheck compares every stored balance of the owner with the sum derived
// from the movements, inside one transaction.
func (s *AccountService) SelfCheck(ctx context.Context, ownerID string) ([]Reconciliation, error) {
	var report []Reconciliation
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		report = nil
		accounts, err := s.accounts.ListByOwnerForUpdate(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		for _, account := range accounts {
			movements, err := s.movements.AllForAccount(ctx, tx, account.ID)
			if err != nil {
				return err
			}
			report = append(report, Reconciliation{
				AccountID:    account.ID,
				Number:       account.Number,
				StoredMinor:  account.Balance,
				DerivedMinor: ledger.Balance(account.ID, movements),
			})
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	for _, r := range report {
		if !r.Consistent() {
			s.logger.Error("balance mismatch", "account", r.Number, "stored", r.StoredMinor, "derived", r.DerivedMinor)
		}
	}
	return report, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
