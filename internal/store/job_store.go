package store

import (
	"context"

	"github.com/shopspring/decimal"
)

type JobStore struct {
	db DB
}

type Job struct {
	ID            int64           `db:"id"`
	Name          string          `db:"name"`
	MonthlySalary decimal.Decimal `db:"monthly_salary"`
}

func NewJobStore(db DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) GetByName(ctx context.Context, name string) (Job, error) {
	var row Job
	err := s.db.GetContext(ctx, &row, `SELECT id, name, monthly_salary FROM jobs WHERE name = $1`, name)
	if err != nil {
		return Job{}, err
	}
	return row, nil
}

func (s *JobStore) GetByID(ctx context.Context, jobID int64) (Job, error) {
	var row Job
	err := s.db.GetContext(ctx, &row, `SELECT id, name, monthly_salary FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		return Job{}, err
	}
	return row, nil
}

func (s *JobStore) List(ctx context.Context) ([]Job, error) {
	var rows []Job
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, monthly_salary FROM jobs ORDER BY name`); err != nil {
		return nil, err
	}
	return rows, nil
}
