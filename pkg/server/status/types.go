package status

import (
	"context"
	"sync"
	"time"

	"github.com/KyleBrandon/lbis-server/internal/actuator"
	"github.com/KyleBrandon/lbis-server/internal/pump"
	"github.com/KyleBrandon/lbis-server/internal/state"
)

const (
	DefaultPushInterval      = time.Second
	DefaultHeartbeatInterval = 30 * time.Second

	PRESENCE_API_DOWN = "API Down"
)

type (
	SessionStatus struct {
		SessionTimeRemaining int    `json:"session_time_remaining"`
		SessionTime          string `json:"session_time"`
		DefaultSessionTime   int    `json:"default_session_time"`
		BankedTime           int    `json:"banked_time"`
		Banked               string `json:"banked"`
	}

	PumpStatus struct {
		On          bool       `json:"on"`
		Known       bool       `json:"known"`
		Level       float64    `json:"level"`
		Intensity   float64    `json:"intensity"`
		TaskMode    string     `json:"task_mode,omitempty"`
		TaskEndTime *time.Time `json:"task_end_time,omitempty"`
		SecondsLeft float64    `json:"seconds_left"`
		LastPumpAt  *time.Time `json:"last_pump_time,omitempty"`
	}

	LatchStatus struct {
		Active      bool       `json:"active"`
		Reason      string     `json:"reason,omitempty"`
		EndTime     *time.Time `json:"end_time,omitempty"`
		SecondsLeft float64    `json:"seconds_left"`
	}

	SystemStatus struct {
		ServiceUp bool          `json:"service_up"`
		Presence  string        `json:"presence"`
		Session   SessionStatus `json:"session"`
		Pump      PumpStatus    `json:"pump"`
		Latch     LatchStatus   `json:"latch"`
	}

	StateSource interface {
		Snapshot() state.Snapshot
	}

	TaskSource interface {
		Task() (pump.TaskInfo, bool)
	}

	LinkSource interface {
		Up() bool
	}

	// FeedSource is the pushed pump level, when a feed is configured.
	FeedSource interface {
		Reading() (actuator.Reading, bool)
	}

	LevelReader interface {
		Level(ctx context.Context) (actuator.Reading, error)
	}

	Builder struct {
		state  StateSource
		tasks  TaskSource
		link   LinkSource
		feed   FeedSource
		reader LevelReader
		now    func() time.Time
	}

	Handler struct {
		builder           *Builder
		originPatterns    []string
		pushInterval      time.Duration
		heartbeatInterval time.Duration

		mu          sync.Mutex
		subscribers map[chan struct{}]struct{}
	}
)
