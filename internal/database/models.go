package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type PumpJob struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Mode           string
	Status         int32
	StartTime      time.Time
	PlannedEndTime time.Time
	EndTime        sql.NullTime
	Result         sql.NullString
	SessionSeconds int32
	BankSeconds    int32
	BankedSeconds  int32
}
