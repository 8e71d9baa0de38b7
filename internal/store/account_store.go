package store

import (
	"context"
	"database/sql"
	"time"
)

type AccountStore struct {
	db DB
}

type Account struct {
	ID        string    `db:"id"`
	Number    string    `db:"number"`
	OwnerID   string    `db:"owner_id"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountColumns = `id, number, owner_id, balance, created_at, updated_at`

// Create stamps the row with createdAt so the opening rate limit and the row
// share one clock.
func (s *AccountStore) Create(ctx context.Context, tx Execer, id, number, ownerID string, createdAt time.Time) error {
	query := `
		INSERT INTO accounts (id, number, owner_id, balance, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $4)
	`
	_, err := tx.ExecContext(ctx, query, id, number, ownerID, createdAt)
	return err
}

func (s *AccountStore) NumberExists(ctx context.Context, q Getter, number string) (bool, error) {
	var exists bool
	err := q.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM accounts WHERE number = $1)`, number)
	return exists, err
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetByNumber(ctx context.Context, number string) (Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE number = $1`, number)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) ListByOwner(ctx context.Context, ownerID string) ([]Account, error) {
	var rows []Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE owner_id = $1
		ORDER BY created_at, id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetForUpdate returns sql.ErrNoRows when the account does not exist.
func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (Account, error) {
	var row Account
	err := tx.GetContext(ctx, &row, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) ListByOwnerForUpdate(ctx context.Context, tx Selecter, ownerID string) ([]Account, error) {
	var rows []Account
	err := tx.SelectContext(ctx, &rows, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE owner_id = $1
		ORDER BY id
		FOR UPDATE
	`, ownerID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) UpdateBalance(ctx context.Context, tx Execer, accountID string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, accountID)
	return err
}

// LatestOpenedAt returns nil when the owner has no accounts.
func (s *AccountStore) LatestOpenedAt(ctx context.Context, tx Getter, ownerID string) (*time.Time, error) {
	var latest sql.NullTime
	err := tx.GetContext(ctx, &latest, `SELECT MAX(created_at) FROM accounts WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, err
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Time, nil
}

func (s *AccountStore) DeleteByOwner(ctx context.Context, tx Execer, ownerID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
