package state

import (
	"sync"
	"time"
)

const (
	DefaultSessionTime   = 1800
	DefaultPumpIntensity = 1.0

	stateFileMode   = 0o600
	tempFilePattern = ".session-*.json.tmp"
)

type PumpMode string

const (
	PumpModeTimed  PumpMode = "timed"
	PumpModeBanked PumpMode = "banked"
)

type (
	// Snapshot is everything that survives a restart. Task handles and timers
	// live in their owning components and are never persisted.
	Snapshot struct {
		SessionTimeRemaining int        `json:"session_time_remaining"`
		DefaultSessionTime   int        `json:"default_session_time"`
		SessionPumpStart     *time.Time `json:"session_pump_start"`
		BankedTime           int        `json:"banked_time"`
		PumpIntensity        float64    `json:"pump_intensity"`
		LastPumpTime         *time.Time `json:"last_pump_time"`

		LatchActive  bool       `json:"latch_active"`
		LatchReason  *string    `json:"latch_reason"`
		LatchEndTime *time.Time `json:"latch_end_time"`

		PumpTaskEndTime *time.Time `json:"pump_task_end_time"`
		PumpTaskMode    PumpMode   `json:"pump_task_mode,omitempty"`

		WearerID string `json:"wearer_id,omitempty"`
	}

	Store struct {
		mu       sync.Mutex
		path     string
		defaults Snapshot
		snap     Snapshot
	}
)
