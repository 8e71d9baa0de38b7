package ledger

import "errors"

// Business rule failures. They are detected before any write and are never
// retried automatically.
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidCounterparty = errors.New("invalid counterparty")
	ErrStructuralMismatch  = errors.New("movement shape does not match its kind")
	ErrRateLimited         = errors.New("account opening rate limit reached")
	ErrUnauthorizedAccount = errors.New("account does not belong to owner")
	ErrDuplicateRequest    = errors.New("duplicate request")
	ErrAccountNotEmpty     = errors.New("account still holds funds")
	ErrInvalidCredentials  = errors.New("invalid holder code or pin")
	ErrOwnerNotFound       = errors.New("owner not found")
	ErrUnknownJob          = errors.New("unknown job")
	ErrNoSalary            = errors.New("owner has no salaried job")
)

// Storage-level failures.
var (
	// ErrConcurrencyConflict is safe to retry from scratch with fresh balances.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrStorageFailure      = errors.New("storage failure")
)

var businessErrors = []error{
	ErrInvalidAmount,
	ErrInsufficientFunds,
	ErrAccountNotFound,
	ErrInvalidCounterparty,
	ErrStructuralMismatch,
	ErrRateLimited,
	ErrUnauthorizedAccount,
	ErrDuplicateRequest,
	ErrAccountNotEmpty,
	ErrInvalidCredentials,
	ErrOwnerNotFound,
	ErrUnknownJob,
	ErrNoSalary,
}

// IsBusinessError reports whether err is a rule violation rather than a
// storage problem.
func IsBusinessError(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
