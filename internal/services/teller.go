package services

import (
	"context"
	"fmt"

	"bankledger/internal/ledger"
	"bankledger/internal/money"
	"bankledger/internal/store"
)

const salaryDescription = "Salary"

// Teller turns owner requests expressed with external account numbers into
// movements for the engine. Every request names the calling owner explicitly.
type Teller struct {
	engine   *Engine
	accounts AccountStore
	owners   OwnerStore
	jobs     JobStore
}

func NewTeller(engine *Engine, accounts AccountStore, owners OwnerStore, jobs JobStore) *Teller {
	return &Teller{engine: engine, accounts: accounts, owners: owners, jobs: jobs}
}

type TransferRequest struct {
	OwnerID         string
	FromNumber      string
	ToNumber        string
	AmountMinor     int64
	Description     string
	ClientRequestID *string
}

type CashRequest struct {
	OwnerID         string
	Number          string
	AmountMinor     int64
	Description     string
	ClientRequestID *string
}

type SalaryRequest struct {
	OwnerID         string
	Number          string
	ClientRequestID *string
}

func (t *Teller) Transfer(ctx context.Context, req TransferRequest) (Snapshot, error) {
	return t.twoSided(ctx, ledger.KindTransfer, req)
}

// Payment moves value to a payee account, typically a merchant.
func (t *Teller) Payment(ctx context.Context, req TransferRequest) (Snapshot, error) {
	return t.twoSided(ctx, ledger.KindPayment, req)
}

func (t *Teller) twoSided(ctx context.Context, kind ledger.Kind, req TransferRequest) (Snapshot, error) {
	if err := ledger.ValidateAmount(req.AmountMinor); err != nil {
		return Snapshot{}, err
	}
	source, err := t.ownedAccount(ctx, req.OwnerID, req.FromNumber)
	if err != nil {
		return Snapshot{}, err
	}
	target, err := t.accounts.GetByNumber(ctx, req.ToNumber)
	if err != nil {
		if isNoRows(err) {
			return Snapshot{}, fmt.Errorf("%w: %s", ledger.ErrInvalidCounterparty, req.ToNumber)
		}
		return Snapshot{}, classify(err)
	}
	m := ledger.NewMovement(req.AmountMinor, req.Description, kind, source.ID, target.ID)
	m.ClientRequestID = req.ClientRequestID
	return t.engine.Apply(ctx, req.OwnerID, m)
}

func (t *Teller) Deposit(ctx context.Context, req CashRequest) (Snapshot, error) {
	if err := ledger.ValidateAmount(req.AmountMinor); err != nil {
		return Snapshot{}, err
	}
	account, err := t.ownedAccount(ctx, req.OwnerID, req.Number)
	if err != nil {
		return Snapshot{}, err
	}
	m := ledger.NewDeposit(req.AmountMinor, req.Description, account.ID)
	m.ClientRequestID = req.ClientRequestID
	return t.engine.Apply(ctx, req.OwnerID, m)
}

func (t *Teller) Withdraw(ctx context.Context, req CashRequest) (Snapshot, error) {
	if err := ledger.ValidateAmount(req.AmountMinor); err != nil {
		return Snapshot{}, err
	}
	account, err := t.ownedAccount(ctx, req.OwnerID, req.Number)
	if err != nil {
		return Snapshot{}, err
	}
	m := ledger.NewWithdrawal(req.AmountMinor, req.Description, account.ID)
	m.ClientRequestID = req.ClientRequestID
	return t.engine.Apply(ctx, req.OwnerID, m)
}

// PaySalary deposits one monthly salary of the owner's job.
func (t *Teller) PaySalary(ctx context.Context, req SalaryRequest) (Snapshot, error) {
	owner, err := t.owners.GetByID(ctx, req.OwnerID)
	if err != nil {
		if isNoRows(err) {
			return Snapshot{}, ledger.ErrOwnerNotFound
		}
		return Snapshot{}, classify(err)
	}
	if owner.JobID == nil {
		return Snapshot{}, ledger.ErrNoSalary
	}
	job, err := t.jobs.GetByID(ctx, *owner.JobID)
	if err != nil {
		return Snapshot{}, classify(err)
	}
	salary, err := money.FromDecimal(job.MonthlySalary)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s salary %s", ledger.ErrInvalidAmount, job.Name, job.MonthlySalary)
	}
	if salary <= 0 {
		return Snapshot{}, fmt.Errorf("%w: %s", ledger.ErrNoSalary, job.Name)
	}
	account, err := t.ownedAccount(ctx, req.OwnerID, req.Number)
	if err != nil {
		return Snapshot{}, err
	}
	m := ledger.NewDeposit(salary, salaryDescription+" "+job.Name, account.ID)
	m.ClientRequestID = req.ClientRequestID
	return t.engine.Apply(ctx, req.OwnerID, m)
}

func (t *Teller) ownedAccount(ctx context.Context, ownerID, number string) (store.Account, error) {
	account, err := t.accounts.GetByNumber(ctx, number)
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
