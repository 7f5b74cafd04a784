package history

import (
	"context"
	"time"

	"github.com/KyleBrandon/lbis-server/internal/database"
	"github.com/google/uuid"
)

const (
	DefaultLimit = 20
	MaxLimit     = 200
)

type JobResponse struct {
	ID             uuid.UUID  `json:"id"`
	Mode           string     `json:"mode"`
	Running        bool       `json:"running"`
	StartTime      time.Time  `json:"start_time"`
	PlannedEndTime time.Time  `json:"planned_end_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Result         string     `json:"result,omitempty"`
	SessionSeconds int        `json:"session_seconds"`
	BankSeconds    int        `json:"bank_seconds"`
	BankedSeconds  int        `json:"banked_seconds"`
}

type JobSource interface {
	Enabled() bool
	Recent(ctx context.Context, limit int) ([]database.PumpJob, error)
}

type Handler struct {
	jobs JobSource
}
