package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/KyleBrandon/lbis-server/internal/state"
)

func NewEngine(store *state.Store, limits Limits, refresher StatusRefresher) *Engine {
	if limits.MaxSessionExtension <= 0 {
		limits.MaxSessionExtension = DefaultMaxSessionExtension
	}
	if limits.MaxSessionTime <= 0 {
		limits.MaxSessionTime = DefaultMaxSessionTime
	}
	if limits.MaxBankedTime <= 0 {
		limits.MaxBankedTime = DefaultMaxBankedTime
	}

	return &Engine{
		store:     store,
		limits:    limits,
		refresher: refresher,
	}
}

// AttachPump registers the pump supervisor so intensity changes reach a running task.
func (e *Engine) AttachPump(pump LivePump) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pump = pump
}

func (e *Engine) Limits() Limits {
	return e.limits
}

func (e *Engine) Snapshot() state.Snapshot {
	return e.store.Snapshot()
}

// AddSessionTime adds minutes to the session, clamped to maximum seconds.
// It returns the seconds actually added.
func (e *Engine) AddSessionTime(minutes int, maximum int) (Change, error) {
	slog.Debug(">>AddSessionTime", "minutes", minutes, "maximum", maximum)
	defer slog.Debug("<<AddSessionTime")

	if minutes <= 0 {
		return Change{}, ErrNotPositive
	}

	if minutes > e.limits.MaxSessionExtension/60 {
		return Change{}, fmt.Errorf("%d minutes (limit %d): %w", minutes, e.limits.MaxSessionExtension/60, ErrExceedsExtension)
	}
	seconds := minutes * 60

	var change Change
	_, err := e.store.Update(func(s *state.Snapshot) error {
		if s.SessionTimeRemaining >= maximum {
			return ErrSessionFull
		}

		change.Before = s.SessionTimeRemaining
		s.SessionTimeRemaining += min(seconds, maximum-s.SessionTimeRemaining)
		change.After = s.SessionTimeRemaining
		change.Amount = change.After - change.Before
		return nil
	})
	if err != nil {
		return Change{}, err
	}

	slog.Info("session time added", "requested", seconds, "added", change.Amount, "total", change.After)
	e.refresh()

	return change, nil
}

// RemoveSessionTime subtracts minutes from the session, never going below zero.
func (e *Engine) RemoveSessionTime(minutes int) (Change, error) {
	if minutes <= 0 {
		return Change{}, ErrNotPositive
	}

	seconds := math.MaxInt
	if minutes <= math.MaxInt/60 {
		seconds = minutes * 60
	}

	change := e.debit(seconds)
	slog.Info("session time removed", "requested", seconds, "removed", change.Amount, "total", change.After)
	e.refresh()

	return change, nil
}

// SetSessionTime sets the session and the default it resets to.
func (e *Engine) SetSessionTime(minutes int) (Change, error) {
	if minutes < 0 {
		return Change{}, ErrNegative
	}

	if minutes > e.limits.MaxSessionTime/60 {
		return Change{}, fmt.Errorf("%d minutes (limit %d): %w", minutes, e.limits.MaxSessionTime/60, ErrExceedsMaximum)
	}
	seconds := minutes * 60

	var change Change
	_, err := e.store.Update(func(s *state.Snapshot) error {
		change.Before = s.SessionTimeRemaining
		s.SessionTimeRemaining = seconds
		s.DefaultSessionTime = seconds
		s.SessionPumpStart = nil
		change.After = seconds
		change.Amount = seconds
		return nil
	})
	if err != nil {
		return Change{}, err
	}

	slog.Info("session time set", "seconds", seconds)
	e.refresh()

	return change, nil
}

// ResetSessionTime restores the default session time.
func (e *Engine) ResetSessionTime() (Change, error) {
	var change Change
	_, err := e.store.Update(func(s *state.Snapshot) error {
		change.Before = s.SessionTimeRemaining
		s.SessionTimeRemaining = s.DefaultSessionTime
		s.SessionPumpStart = nil
		change.After = s.SessionTimeRemaining
		change.Amount = change.After
		return nil
	})
	if err != nil {
		return Change{}, err
	}

	slog.Info("session time reset", "seconds", change.After)
	e.refresh()

	return change, nil
}

// BankAdd deposits seconds into the bank, clamped to the bank maximum.
func (e *Engine) BankAdd(seconds int) (Change, error) {
	if seconds <= 0 {
		return Change{}, ErrNotPositive
	}

	var change Change
	_, err := e.store.Update(func(s *state.Snapshot) error {
		if s.BankedTime >= e.limits.MaxBankedTime {
			return ErrBankFull
		}

		change.Before = s.BankedTime
		s.BankedTime += min(seconds, max(e.limits.MaxBankedTime-s.BankedTime, 0))
		change.After = s.BankedTime
		change.Amount = change.After - change.Before
		return nil
	})
	if err != nil {
		return Change{}, err
	}

	slog.Info("banked time added", "requested", seconds, "added", change.Amount, "total", change.After)
	e.refresh()

	return change, nil
}

// BankRemove withdraws seconds from the bank. Overdrawing empties the bank.
func (e *Engine) BankRemove(seconds int) (Change, error) {
	if seconds <= 0 {
		return Change{}, ErrNotPositive
	}

	var change Change
	_, err := e.store.Update(func(s *state.Snapshot) error {
		change.Before = s.BankedTime
		s.BankedTime = max(s.BankedTime-seconds, 0)
		change.After = s.BankedTime
		change.Amount = change.Before - change.After
		return nil
	})
	if err != nil {
		return Change{}, err
	}

	slog.Info("banked time removed", "requested", seconds, "removed", change.Amount, "total", change.After)
	e.refresh()

	return change, nil
}

func (e *Engine) BankSet(seconds int) (Change, error) {
	if seconds < 0 {
		return Change{}, ErrNegative
	}

	if seconds > e.limits.MaxBankedTime {
		return Change{}, fmt.Errorf("%d seconds (limit %d): %w", seconds, e.limits.MaxBankedTime, ErrExceedsMaximum)
	}

	var change Change
	_, err := e.store.Update(func(s *state.Snapshot) error {
		change.Before = s.BankedTime
		s.BankedTime = seconds
		change.After = seconds
		change.Amount = seconds
		return nil
	})
	if err != nil {
		return Change{}, err
	}

	slog.Info("banked time set", "seconds", seconds)
	e.refresh()

	return change, nil
}

func (e *Engine) BankReset() (Change, error) {
	var change Change
	_, err := e.store.Update(func(s *state.Snapshot) error {
		change.Before = s.BankedTime
		s.BankedTime = 0
		change.Amount = change.Before
		return nil
	})
	if err != nil {
		return Change{}, err
	}

	slog.Info("banked time reset", "was", change.Before)
	e.refresh()

	return change, nil
}

// SetIntensity stores the default intensity. A running pump is moved to the
// new level as well; failing that is reported but the default is kept.
func (e *Engine) SetIntensity(ctx context.Context, intensity float64) (IntensityChange, error) {
	slog.Debug(">>SetIntensity", "intensity", intensity)
	defer slog.Debug("<<SetIntensity")

	if math.IsNaN(intensity) || intensity < 0 || intensity > 1 {
		return IntensityChange{}, ErrIntensityRange
	}

	_, err := e.store.Update(func(s *state.Snapshot) error {
		s.PumpIntensity = intensity
		return nil
	})
	if err != nil {
		return IntensityChange{}, err
	}

	result := IntensityChange{Intensity: intensity}

	e.mu.RLock()
	pump := e.pump
	e.mu.RUnlock()

	if pump != nil && pump.Running() {
		result.PumpRunning = true
		if err := pump.SetLevel(ctx, intensity); errors.Is(err, ErrPumpNotRunning) {
			result.PumpRunning = false
		} else if err != nil {
			slog.Error("failed to update running pump intensity", "intensity", intensity, "error", err)
			result.ApplyErr = fmt.Errorf("%w: %w", ErrLiveIntensity, err)
		} else {
			result.Applied = true
		}
	}

	slog.Info("pump intensity set", "intensity", intensity, "applied_live", result.Applied)
	e.refresh()

	return result, nil
}

// DebitSession removes seconds consumed by a pump run, floored at zero.
func (e *Engine) DebitSession(seconds int) Change {
	if seconds <= 0 {
		return Change{}
	}

	change := e.debit(seconds)
	e.refresh()

	return change
}

// DepositBank adds unconsumed pump time to the bank, capped at the maximum.
// A full bank is not an error; the returned amount is simply zero.
func (e *Engine) DepositBank(seconds int) Change {
	if seconds <= 0 {
		return Change{}
	}

	var change Change
	e.store.Update(func(s *state.Snapshot) error {
		change.Before = s.BankedTime
		s.BankedTime += min(seconds, max(e.limits.MaxBankedTime-s.BankedTime, 0))
		change.After = s.BankedTime
		change.Amount = change.After - change.Before
		return nil
	})

	if change.Amount > 0 {
		slog.Info("banked unused pump time", "seconds", change.Amount, "total", change.After)
		e.refresh()
	}

	return change
}

// ConsumeBanked takes up to seconds from both the bank and the session in one
// step and returns how much was taken from each.
func (e *Engine) ConsumeBanked(seconds int) int {
	if seconds <= 0 {
		return 0
	}

	var taken int
	e.store.Update(func(s *state.Snapshot) error {
		taken = min(seconds, s.BankedTime, s.SessionTimeRemaining)
		if taken < 0 {
			taken = 0
		}
		s.BankedTime -= taken
		s.SessionTimeRemaining -= taken
		return nil
	})

	if taken > 0 {
		e.refresh()
	}

	return taken
}

func (e *Engine) debit(seconds int) Change {
	var change Change
	e.store.Update(func(s *state.Snapshot) error {
		change.Before = s.SessionTimeRemaining
		s.SessionTimeRemaining = max(s.SessionTimeRemaining-seconds, 0)
		change.After = s.SessionTimeRemaining
		change.Amount = change.Before - change.After
		return nil
	})

	return change
}

func (e *Engine) refresh() {
	if e.refresher != nil {
		e.refresher.RequestStatusUpdate()
	}
}
