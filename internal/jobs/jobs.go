package jobs

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/KyleBrandon/lbis-server/internal/database"
	"github.com/google/uuid"
)

const (
	JOBSTATUS_STARTED = 1
	JOBSTATUS_STOPPED = 2
)

const (
	JOBRESULT_COMPLETED   = "completed"
	JOBRESULT_INTERRUPTED = "interrupted"
	JOBRESULT_EXHAUSTED   = "exhausted"
	JOBRESULT_CANCELLED   = "cancelled"
)

const storeTimeout = 5 * time.Second

type JobStore interface {
	CreatePumpJob(ctx context.Context, arg database.CreatePumpJobParams) (database.PumpJob, error)
	ExtendPumpJob(ctx context.Context, arg database.ExtendPumpJobParams) error
	FinishPumpJob(ctx context.Context, arg database.FinishPumpJobParams) (database.PumpJob, error)
	ListRecentPumpJobs(ctx context.Context, limit int32) ([]database.PumpJob, error)
}

// Outcome is how a pump run ended and what it cost.
type Outcome struct {
	Result         string
	EndTime        time.Time
	SessionSeconds int
	BankSeconds    int
	BankedSeconds  int
}

// Recorder writes pump run history. With no store configured it only hands
// out ids, so callers never need to check.
type Recorder struct {
	DB JobStore
}

func NewRecorder(db JobStore) *Recorder {
	return &Recorder{DB: db}
}

func (r *Recorder) Enabled() bool {
	return r != nil && r.DB != nil
}

// Start records a new run and returns its id. Store failures are logged.
func (r *Recorder) Start(ctx context.Context, mode string, start time.Time, plannedEnd time.Time) uuid.UUID {
	jobId := uuid.New()
	if !r.Enabled() {
		return jobId
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	params := database.CreatePumpJobParams{
		ID:             jobId,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
		Mode:           mode,
		Status:         JOBSTATUS_STARTED,
		StartTime:      start.UTC(),
		PlannedEndTime: plannedEnd.UTC(),
	}

	if _, err := r.DB.CreatePumpJob(ctx, params); err != nil {
		slog.Error("failed to record pump job start", "job_id", jobId, "error", err)
	}

	return jobId
}

func (r *Recorder) Extend(ctx context.Context, jobId uuid.UUID, plannedEnd time.Time) {
	if !r.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	params := database.ExtendPumpJobParams{
		ID:             jobId,
		PlannedEndTime: plannedEnd.UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	if err := r.DB.ExtendPumpJob(ctx, params); err != nil {
		slog.Error("failed to record pump job extension", "job_id", jobId, "error", err)
	}
}

func (r *Recorder) Finish(ctx context.Context, jobId uuid.UUID, outcome Outcome) {
	if !r.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	params := database.FinishPumpJobParams{
		ID:      jobId,
		Status:  JOBSTATUS_STOPPED,
		EndTime: outcome.EndTime.UTC(),
		Result: sql.NullString{
			String: outcome.Result,
			Valid:  len(outcome.Result) != 0,
		},
		SessionSeconds: int32(outcome.SessionSeconds),
		BankSeconds:    int32(outcome.BankSeconds),
		BankedSeconds:  int32(outcome.BankedSeconds),
		UpdatedAt:      time.Now().UTC(),
	}

	if _, err := r.DB.FinishPumpJob(ctx, params); err != nil {
		slog.Error("failed to record pump job finish", "job_id", jobId, "error", err)
	}
}

func (r *Recorder) Recent(ctx context.Context, limit int) ([]database.PumpJob, error) {
	if !r.Enabled() {
		return nil, nil
	}

	return r.DB.ListRecentPumpJobs(ctx, int32(limit))
}
