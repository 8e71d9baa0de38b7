package ledger

// Balance derives the balance of accountID from the movements that reference
// it. Order does not matter.
func Balance(accountID string, movements []Movement) int64 {
	var balance int64
	for _, m := range movements {
		balance += m.Delta(accountID)
	}
	return balance
}

func ValidateAmount(amountMinor int64) error {
	if amountMinor <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ValidateSufficientFunds must be called with a balance read under the same
// lock that guards the debit.
func ValidateSufficientFunds(balanceMinor, amountMinor int64) error {
	if balanceMinor < amountMinor {
		return ErrInsufficientFunds
	}
	return nil
}
