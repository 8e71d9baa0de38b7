package store

import (
	"context"
	"time"

	"bankledger/internal/ledger"
)

type MovementStore struct {
	db DB
}

type movementRow struct {
	ID              string    `db:"id"`
	Kind            string    `db:"kind"`
	Amount          int64     `db:"amount"`
	Description     string    `db:"description"`
	SourceID        *string   `db:"source_id"`
	TargetID        *string   `db:"target_id"`
	ClientRequestID *string   `db:"client_request_id"`
	CreatedAt       time.Time `db:"created_at"`
}

func NewMovementStore(db DB) *MovementStore {
	return &MovementStore{db: db}
}

// Insert stores a movement and returns it with the database timestamp. The
// movement ID must already be set.
func (s *MovementStore) Insert(ctx context.Context, tx Getter, m ledger.Movement) (ledger.Movement, error) {
	var createdAt time.Time
	err := tx.GetContext(ctx, &createdAt, `
		INSERT INTO movements (id, kind, amount, description, source_id, target_id, client_request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, m.ID, string(m.Kind), m.AmountMinor, m.Description, m.SourceID, m.TargetID, m.ClientRequestID)
	if err != nil {
		return ledger.Movement{}, err
	}
	m.CreatedAt = createdAt
	return m, nil
}

// ListForAccount pages through the movements touching accountID, newest first.
func (s *MovementStore) ListForAccount(ctx context.Context, accountID string, limit, offset int) ([]ledger.Movement, error) {
	var rows []movementRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, kind, amount, description, source_id, target_id, client_request_id, created_at
		FROM movements
		WHERE source_id = $1 OR target_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return movementRowsToLedger(rows), nil
}

// AllForAccount reads through q so reconciliation can see the same snapshot as
// the balances it compares against.
func (s *MovementStore) AllForAccount(ctx context.Context, q Selecter, accountID string) ([]ledger.Movement, error) {
	var rows []movementRow
	err := q.SelectContext(ctx, &rows, `
		SELECT id, kind, amount, description, source_id, target_id, client_request_id, created_at
		FROM movements
		WHERE source_id = $1 OR target_id = $1
	`, accountID)
	if err != nil {
		return nil, err
	}
	return movementRowsToLedger(rows), nil
}

func movementRowsToLedger(rows []movementRow) []ledger.Movement {
	movements := make([]ledger.Movement, 0, len(rows))
	for _, row := range rows {
		movements = append(movements, ledger.Movement{
			ID:              row.ID,
			Kind:            ledger.Kind(row.Kind),
			AmountMinor:     row.Amount,
			Description:     row.Description,
			SourceID:        row.SourceID,
			TargetID:        row.TargetID,
			ClientRequestID: row.ClientRequestID,
			CreatedAt:       row.CreatedAt,
		})
	}
	return movements
}
