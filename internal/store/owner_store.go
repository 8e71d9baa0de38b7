package store

import (
	"context"
	"time"
)

type OwnerStore struct {
	db DB
}

type Owner struct {
	ID         string    `db:"id"`
	FirstName  string    `db:"first_name"`
	LastName   string    `db:"last_name"`
	TaxCode    string    `db:"tax_code"`
	HolderCode string    `db:"holder_code"`
	PinHash    string    `db:"pin_hash"`
	JobID      *int64    `db:"job_id"`
	CreatedAt  time.Time `db:"created_at"`
}

func NewOwnerStore(db DB) *OwnerStore {
	return &OwnerStore{db: db}
}

const ownerColumns = `id, first_name, last_name, tax_code, holder_code, pin_hash, job_id, created_at`

func (s *OwnerStore) Create(ctx context.Context, tx Execer, owner Owner) error {
	query := `
		INSERT INTO owners (id, first_name, last_name, tax_code, holder_code, pin_hash, job_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		owner.ID, owner.FirstName, owner.LastName, owner.TaxCode, owner.HolderCode, owner.PinHash, owner.JobID,
	)
	return err
}

func (s *OwnerStore) HolderCodeExists(ctx context.Context, q Getter, code string) (bool, error) {
	var exists bool
	err := q.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM owners WHERE holder_code = $1)`, code)
	return exists, err
}

func (s *OwnerStore) GetByHolderCode(ctx context.Context, code string) (Owner, error) {
	var row Owner
	err := s.db.GetContext(ctx, &row, `SELECT `+ownerColumns+` FROM owners WHERE holder_code = $1`, code)
	if err != nil {
		return Owner{}, err
	}
	return row, nil
}

func (s *OwnerStore) GetByID(ctx context.Context, ownerID string) (Owner, error) {
	var row Owner
	err := s.db.GetContext(ctx, &row, `SELECT `+ownerColumns+` FROM owners WHERE id = $1`, ownerID)
	if err != nil {
		return Owner{}, err
	}
	return row, nil
}

// GetForUpdate serializes account opening and deletion for one owner.
func (s *OwnerStore) GetForUpdate(ctx context.Context, tx Getter, ownerID string) (Owner, error) {
	var row Owner
	err := tx.GetContext(ctx, &row, `SELECT `+ownerColumns+` FROM owners WHERE id = $1 FOR UPDATE`, ownerID)
	if err != nil {
		return Owner{}, err
	}
	return row, nil
}

func (s *OwnerStore) Delete(ctx context.Context, tx Execer, ownerID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM owners WHERE id = $1`, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
