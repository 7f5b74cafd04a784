package pump

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/KyleBrandon/lbis-server/internal/accounting"
	"github.com/KyleBrandon/lbis-server/internal/jobs"
	"github.com/KyleBrandon/lbis-server/internal/state"
	"github.com/google/uuid"
)

const (
	DefaultMaxPumpDuration    = 60 * time.Second
	DefaultActuatorTimeout    = 5 * time.Second
	DefaultTimedPollInterval  = 500 * time.Millisecond
	DefaultBankedPollInterval = 200 * time.Millisecond
)

const (
	INTERRUPT_LATCHED      = "latched"
	INTERRUPT_SERVICE_DOWN = "service down"
)

var (
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrExceedsMaximum  = errors.New("duration exceeds the maximum pump duration")
	ErrLatched         = errors.New("pump is latched")
	ErrServiceDown     = errors.New("pump service is down")
	ErrTaskRunning     = errors.New("a pump task is already running")
	ErrNoSessionTime   = errors.New("no session time remaining")
	ErrNoBankedTime    = errors.New("no banked time available")
	ErrActuator        = errors.New("failed to command the pump")
	ErrShutdown        = errors.New("pump supervisor is shut down")
	ErrNotRunning      = accounting.ErrPumpNotRunning
)

type (
	Actuator interface {
		SetLevel(ctx context.Context, level float64) error
	}

	Link interface {
		Up() bool
	}

	StatusRefresher interface {
		RequestStatusUpdate()
	}

	JobRecorder interface {
		Start(ctx context.Context, mode string, start time.Time, plannedEnd time.Time) uuid.UUID
		Extend(ctx context.Context, jobId uuid.UUID, plannedEnd time.Time)
		Finish(ctx context.Context, jobId uuid.UUID, outcome jobs.Outcome)
	}

	Config struct {
		MaxPumpDuration    time.Duration
		ActuatorTimeout    time.Duration
		TimedPollInterval  time.Duration
		BankedPollInterval time.Duration
	}

	// StartResult describes a started or extended run, in seconds.
	StartResult struct {
		JobID     uuid.UUID
		Mode      state.PumpMode
		Seconds   int
		Intensity float64
		EndTime   time.Time

		Extended bool
		Granted  int
		Overflow int
		Banked   int
	}

	// TaskInfo is a read-only view of the live task.
	TaskInfo struct {
		JobID   uuid.UUID
		Mode    state.PumpMode
		Start   time.Time
		EndTime time.Time
	}

	task struct {
		id    uuid.UUID
		mode  state.PumpMode
		start time.Time
		end   time.Time

		// session seconds already debited; for banked runs the bank was debited the same amount
		debited int
		banked  int
		result  string

		finishing bool
		stoppedAt time.Time
		cancel    context.CancelFunc
		done      chan struct{}
	}

	Supervisor struct {
		engine    *accounting.Engine
		store     *state.Store
		actuator  Actuator
		link      Link
		recorder  JobRecorder
		refresher StatusRefresher
		cfg       Config

		now func() time.Time

		ctx    context.Context
		cancel context.CancelFunc
		wg     sync.WaitGroup

		// startMu serializes start, extend and manual operations end to end
		startMu sync.Mutex
		mu      sync.Mutex
		task    *task
	}
)
