package latch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/KyleBrandon/lbis-server/internal/state"
)

const (
	MaxReasonLength        = 100
	DefaultActuatorTimeout = 5 * time.Second

	ExpiredMessage = "Timed latch has expired - pump is now unlatched."
)

var (
	ErrNotLatched      = errors.New("the pump is not latched")
	ErrReasonTooLong   = errors.New("latch reason must be 100 characters or less")
	ErrInvalidDuration = errors.New("latch duration must not be negative")
	ErrActuatorWarning = errors.New("failed to turn the pump off while latching, latch applied anyway")
)

type (
	Actuator interface {
		SetLevel(ctx context.Context, level float64) error
	}

	Notifier interface {
		Notify(message string)
	}

	StatusRefresher interface {
		RequestStatusUpdate()
	}

	stopper interface {
		Stop() bool
	}

	// Result is the latch state after an operation. Warning is set when the
	// latch applied but the pump could not be confirmed off.
	Result struct {
		Active  bool
		Reason  string
		EndTime *time.Time
		Warning error
	}

	Controller struct {
		store     *state.Store
		actuator  Actuator
		notifier  Notifier
		refresher StatusRefresher
		timeout   time.Duration

		now       func() time.Time
		afterFunc func(time.Duration, func()) stopper

		mu         sync.Mutex
		timer      stopper
		generation uint64
	}
)
