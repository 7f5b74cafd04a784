package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const pumpJobColumns = `id, created_at, updated_at, mode, status, start_time, planned_end_time, end_time, result, session_seconds, bank_seconds, banked_seconds`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPumpJob(row rowScanner) (PumpJob, error) {
	var i PumpJob
	err := row.Scan(
		&i.ID,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.Mode,
		&i.Status,
		&i.StartTime,
		&i.PlannedEndTime,
		&i.EndTime,
		&i.Result,
		&i.SessionSeconds,
		&i.BankSeconds,
		&i.BankedSeconds,
	)
	return i, err
}

const createPumpJob = `INSERT INTO pump_jobs (id, created_at, updated_at, mode, status, start_time, planned_end_time)
VALUES (?, ?, ?, ?, ?, ?, ?)`

type CreatePumpJobParams struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Mode           string
	Status         int32
	StartTime      time.Time
	PlannedEndTime time.Time
}

func (q *Queries) CreatePumpJob(ctx context.Context, arg CreatePumpJobParams) (PumpJob, error) {
	_, err := q.db.ExecContext(ctx, q.rebind(createPumpJob),
		arg.ID,
		arg.CreatedAt,
		arg.UpdatedAt,
		arg.Mode,
		arg.Status,
		arg.StartTime,
		arg.PlannedEndTime,
	)
	if err != nil {
		return PumpJob{}, err
	}

	return q.GetPumpJobById(ctx, arg.ID)
}

const getPumpJobById = `SELECT ` + pumpJobColumns + ` FROM pump_jobs WHERE id = ?`

func (q *Queries) GetPumpJobById(ctx context.Context, id uuid.UUID) (PumpJob, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(getPumpJobById), id)
	return scanPumpJob(row)
}

const extendPumpJob = `UPDATE pump_jobs SET planned_end_time = ?, updated_at = ? WHERE id = ?`

type ExtendPumpJobParams struct {
	ID             uuid.UUID
	PlannedEndTime time.Time
	UpdatedAt      time.Time
}

func (q *Queries) ExtendPumpJob(ctx context.Context, arg ExtendPumpJobParams) error {
	_, err := q.db.ExecContext(ctx, q.rebind(extendPumpJob), arg.PlannedEndTime, arg.UpdatedAt, arg.ID)
	return err
}

const finishPumpJob = `UPDATE pump_jobs
SET status = ?, end_time = ?, result = ?, session_seconds = ?, bank_seconds = ?, banked_seconds = ?, updated_at = ?
WHERE id = ?`

type FinishPumpJobParams struct {
	ID             uuid.UUID
	Status         int32
	EndTime        time.Time
	Result         sql.NullString
	SessionSeconds int32
	BankSeconds    int32
	BankedSeconds  int32
	UpdatedAt      time.Time
}

func (q *Queries) FinishPumpJob(ctx context.Context, arg FinishPumpJobParams) (PumpJob, error) {
	_, err := q.db.ExecContext(ctx, q.rebind(finishPumpJob),
		arg.Status,
		arg.EndTime,
		arg.Result,
		arg.SessionSeconds,
		arg.BankSeconds,
		arg.BankedSeconds,
		arg.UpdatedAt,
		arg.ID,
	)
	if err != nil {
		return PumpJob{}, err
	}

	return q.GetPumpJobById(ctx, arg.ID)
}

const listRecentPumpJobs = `SELECT ` + pumpJobColumns + ` FROM pump_jobs ORDER BY start_time DESC LIMIT ?`

func (q *Queries) ListRecentPumpJobs(ctx context.Context, limit int32) ([]PumpJob, error) {
	rows, err := q.db.QueryContext(ctx, q.rebind(listRecentPumpJobs), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PumpJob
	for rows.Next() {
		i, err := scanPumpJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}
