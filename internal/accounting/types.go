package accounting

import (
	"context"
	"errors"
	"sync"

	"github.com/KyleBrandon/lbis-server/internal/state"
)

const (
	DefaultMaxSessionExtension = 3600
	DefaultMaxSessionTime      = 1800
	DefaultMaxBankedTime       = 3600
)

var (
	ErrNotPositive      = errors.New("amount must be positive")
	ErrNegative         = errors.New("amount must not be negative")
	ErrExceedsExtension = errors.New("amount exceeds the maximum that can be added at once")
	ErrExceedsMaximum   = errors.New("amount exceeds the configured maximum")
	ErrSessionFull      = errors.New("session time is already at its maximum")
	ErrBankFull         = errors.New("banked time is already at its maximum")
	ErrIntensityRange   = errors.New("intensity must be between 0.0 and 1.0")
	ErrLiveIntensity    = errors.New("failed to apply intensity to the running pump")
	ErrPumpNotRunning   = errors.New("no pump task is running")
)

type (
	// Limits are in seconds.
	Limits struct {
		MaxSessionExtension int
		MaxSessionTime      int
		MaxBankedTime       int
	}

	// Change describes the effect of one mutation, in seconds.
	Change struct {
		Amount int
		Before int
		After  int
	}

	IntensityChange struct {
		Intensity   float64
		PumpRunning bool
		Applied     bool
		ApplyErr    error
	}

	// LivePump is the running pump task, if any. SetLevel returns
	// ErrPumpNotRunning when the task ended before the level was pushed.
	LivePump interface {
		Running() bool
		SetLevel(ctx context.Context, level float64) error
	}

	StatusRefresher interface {
		RequestStatusUpdate()
	}

	Engine struct {
		store     *state.Store
		limits    Limits
		refresher StatusRefresher

		mu   sync.RWMutex
		pump LivePump
	}
)
