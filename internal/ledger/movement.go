// Package ledger holds the pure rules of the ledger: movement construction,
// balance derivation and validation. Nothing here performs I/O.
package ledger

import (
	"fmt"
	"time"
)

type Kind string

const (
	KindTransfer   Kind = "transfer"
	KindPayment    Kind = "payment"
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindBonus      Kind = "bonus"
)

type shape struct {
	source bool
	target bool
}

var shapes = map[Kind]shape{
	KindTransfer:   {source: true, target: true},
	KindPayment:    {source: true, target: true},
	KindDeposit:    {source: false, target: true},
	KindWithdrawal: {source: true, target: false},
	KindBonus:      {source: false, target: true},
}

func (k Kind) Valid() bool {
	_, ok := shapes[k]
	return ok
}

// Debits reports whether movements of this kind take value from a source account.
func (k Kind) Debits() bool {
	return shapes[k].source
}

// Credits reports whether movements of this kind add value to a target account.
func (k Kind) Credits() bool {
	return shapes[k].target
}

func ParseKind(raw string) (Kind, error) {
	kind := Kind(raw)
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrStructuralMismatch, raw)
	}
	return kind, nil
}

// Movement is an immutable record of value moving into, out of or between
// accounts. ID and CreatedAt are assigned when the movement is committed.
type Movement struct {
	ID              string
	Kind            Kind
	AmountMinor     int64
	Description     string
	SourceID        *string
	TargetID        *string
	ClientRequestID *string
	CreatedAt       time.Time
}

// NewMovement builds a movement value. It does not validate business rules;
// call CheckShape and ValidateAmount (or Validate) before applying it.
func NewMovement(amountMinor int64, description string, kind Kind, sourceID, targetID string) Movement {
	m := Movement{
		Kind:        kind,
		AmountMinor: amountMinor,
		Description: description,
	}
	if sourceID != "" {
		m.SourceID = &sourceID
	}
	if targetID != "" {
		m.TargetID = &targetID
	}
	return m
}

func NewTransfer(amountMinor int64, description, sourceID, targetID string) Movement {
	return NewMovement(amountMinor, description, KindTransfer, sourceID, targetID)
}

func NewPayment(amountMinor int64, description, sourceID, payeeID string) Movement {
	return NewMovement(amountMinor, description, KindPayment, sourceID, payeeID)
}

func NewDeposit(amountMinor int64, description, targetID string) Movement {
	return NewMovement(amountMinor, description, KindDeposit, "", targetID)
}

func NewWithdrawal(amountMinor int64, description, sourceID string) Movement {
	return NewMovement(amountMinor, description, KindWithdrawal, sourceID, "")
}

func NewBonus(amountMinor int64, description, targetID string) Movement {
	return NewMovement(amountMinor, description, KindBonus, "", targetID)
}

// CheckShape verifies the source/target combination required by the kind.
func (m Movement) CheckShape() error {
	want, ok := shapes[m.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrStructuralMismatch, m.Kind)
	}
	hasSource := m.SourceID != nil && *m.SourceID != ""
	hasTarget := m.TargetID != nil && *m.TargetID != ""
	if hasSource != want.source {
		return fmt.Errorf("%w: %s source presence must be %t", ErrStructuralMismatch, m.Kind, want.source)
	}
	if hasTarget != want.target {
		return fmt.Errorf("%w: %s target presence must be %t", ErrStructuralMismatch, m.Kind, want.target)
	}
	if hasSource && hasTarget && *m.SourceID == *m.TargetID {
		return fmt.Errorf("%w: source and target are the same account", ErrStructuralMismatch)
	}
	return nil
}

// Validate runs every check that does not need current balances.
func (m Movement) Validate() error {
	if err := m.CheckShape(); err != nil {
		return err
	}
	return ValidateAmount(m.AmountMinor)
}

// Source returns the debited account id, or "" when the kind has none.
func (m Movement) Source() string {
	if m.SourceID == nil {
		return ""
	}
	return *m.SourceID
}

// Target returns the credited account id, or "" when the kind has none.
func (m Movement) Target() string {
	if m.TargetID == nil {
		return ""
	}
	return *m.TargetID
}

// Participants lists the distinct account ids the movement touches.
func (m Movement) Participants() []string {
	ids := make([]string, 0, 2)
	if source := m.Source(); source != "" {
		ids = append(ids, source)
	}
	if target := m.Target(); target != "" && target != m.Source() {
		ids = append(ids, target)
	}
	return ids
}

// Delta is the signed effect of the movement on accountID.
func (m Movement) Delta(accountID string) int64 {
	var delta int64
	if m.Target() == accountID {
		delta += m.AmountMinor
	}
	if m.Source() == accountID {
		delta -= m.AmountMinor
	}
	return delta
}
