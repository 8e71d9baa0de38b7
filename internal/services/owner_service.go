package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"bankledger/internal/auth"
	"bankledger/internal/db"
	"bankledger/internal/identifiers"
	"bankledger/internal/ledger"
	"bankledger/internal/store"
	"bankledger/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const holderCodeConstraint = "owners_holder_code_key"

type OwnerService struct {
	txRunner    db.TxRunner
	owners      OwnerStore
	accounts    AccountStore
	jobs        JobStore
	audit       AuditStore
	holderCodes identifiers.Generator
	logger      *slog.Logger
}

func NewOwnerService(txRunner db.TxRunner, owners OwnerStore, accounts AccountStore, jobs JobStore, audit AuditStore, holderCodes identifiers.Generator, logger *slog.Logger) *OwnerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OwnerService{
		txRunner:    txRunner,
		owners:      owners,
		accounts:    accounts,
		jobs:        jobs,
		audit:       audit,
		holderCodes: holderCodes,
		logger:      logger,
	}
}

type RegisterRequest struct {
	FirstName string
	LastName  string
	TaxCode   string
	PIN       string
	// Job is optional; it must name a row of the job catalogue.
	Job string
}

type Profile struct {
	Owner store.Owner
	Job   *store.Job
}

func (s *OwnerService) Register(ctx context.Context, req RegisterRequest) (store.Owner, error) {
	if err := validator.ValidatePIN(req.PIN); err != nil {
		return store.Owner{}, err
	}
	owner := store.Owner{
		ID:        uuid.NewString(),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		TaxCode:   strings.ToUpper(strings.TrimSpace(req.TaxCode)),
	}
	if req.Job != "" {
		job, err := s.jobs.GetByName(ctx, req.Job)
		if err != nil {
			if isNoRows(err) {
				return store.Owner{}, fmt.Errorf("%w: %s", ledger.ErrUnknownJob, req.Job)
			}
			return store.Owner{}, classify(err)
		}
		owner.JobID = &job.ID
	}
	hash, err := auth.HashPIN(req.PIN)
	if err != nil {
		return store.Owner{}, err
	}
	owner.PinHash = hash

	err = s.holderCodes.InsertUnique(ctx, func(ctx context.Context) error {
		return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			code, err := s.holderCodes.Next(ctx, func(ctx context.Context, candidate string) (bool, error) {
				return s.owners.HolderCodeExists(ctx, tx, candidate)
			})
			if err != nil {
				return err
			}
			owner.HolderCode = code
			if err := s.owners.Create(ctx, tx, owner); err != nil {
				return err
			}
			data, _ := json.Marshal(map[string]string{"holder_code": code})
			return s.audit.Log(ctx, tx, owner.ID, "register", "owner", owner.ID, string(data))
		})
	}, func(err error) bool {
		return db.IsUniqueViolation(err, holderCodeConstraint)
	})
	if err != nil {
		return store.Owner{}, classify(err)
	}
	s.logger.Info("owner registered", "owner_id", owner.ID, "holder_code", owner.HolderCode)
	return owner, nil
}

func (s *OwnerService) Authenticate(ctx context.Context, holderCode, pin string) (store.Owner, error) {
	owner, err := s.owners.GetByHolderCode(ctx, holderCode)
	if err != nil {
		if isNoRows(err) {
			return store.Owner{}, ledger.ErrInvalidCredentials
		}
		return store.Owner{}, classify(err)
	}
	if !auth.CheckPIN(owner.PinHash, pin) {
		return store.Owner{}, ledger.ErrInvalidCredentials
	}
	return owner, nil
}

func (s *OwnerService) Get(ctx context.Context, ownerID string) (Profile, error) {
	owner, err := s.owners.GetByID(ctx, ownerID)
	if err != nil {
		if isNoRows(err) {
			return Profile{}, ledger.ErrOwnerNotFound
		}
		return Profile{}, classify(err)
	}
	profile := Profile{Owner: owner}
	if owner.JobID != nil {
		job, err := s.jobs.GetByID(ctx, *owner.JobID)
		if err != nil {
			return Profile{}, classify(err)
		}
		profile.Job = &job
	}
	return profile, nil
}

func (s *OwnerService) Jobs(ctx context.Context) ([]store.Job, error) {
	jobs, err := s.jobs.List(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return jobs, nil
}

// Delete removes the owner and their accounts in one transaction. Movements
// are kept. Owners whose accounts still hold funds are refused.
func (s *OwnerService) Delete(ctx context.Context, ownerID string) error {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.owners.GetForUpdate(ctx, tx, ownerID); err != nil {
			if isNoRows(err) {
				return ledger.ErrOwnerNotFound
			}
			return err
		}
		accounts, err := s.accounts.ListByOwnerForUpdate(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		for _, account := range accounts {
			if account.Balance != 0 {
				return fmt.Errorf("%w: %s", ledger.ErrAccountNotEmpty, account.Number)
			}
		}
		if _, err := s.accounts.DeleteByOwner(ctx, tx, ownerID); err != nil {
			return err
		}
		if _, err := s.owners.Delete(ctx, tx, ownerID); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]int{"accounts_closed": len(accounts)})
		return s.audit.Log(ctx, tx, ownerID, "delete", "owner", ownerID, string(data))
	})
	if err != nil {
		return classify(err)
	}
	s.logger.Info("owner deleted", "owner_id", ownerID)
	return nil
}

func (s *OwnerService) Activity(ctx context.Context, ownerID string, limit, offset int) ([]store.AuditEntry, error) {
	entries, err := s.audit.ListByActor(ctx, ownerID, clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, classify(err)
	}
	return entries, nil
}
