package latch

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/KyleBrandon/lbis-server/internal/state"
)

func NewController(store *state.Store, actuator Actuator, notifier Notifier, refresher StatusRefresher) *Controller {
	return &Controller{
		store:     store,
		actuator:  actuator,
		notifier:  notifier,
		refresher: refresher,
		timeout:   DefaultActuatorTimeout,
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

func (c *Controller) Active() bool {
	return c.store.Snapshot().LatchActive
}

// On latches the pump. Any pending expiry is replaced. A positive duration
// schedules an automatic unlatch.
func (c *Controller) On(ctx context.Context, reason string, duration time.Duration) (Result, error) {
	slog.Debug(">>latch.On", "reason", reason, "duration", duration)
	defer slog.Debug("<<latch.On")

	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return Result{}, ErrReasonTooLong
	}

	if duration < 0 {
		return Result{}, ErrInvalidDuration
	}

	c.mu.Lock()
	c.stopTimerLocked()

	var endTime *time.Time
	if duration > 0 {
		endTime = state.TimePtr(c.now().Add(duration))
	}

	snap, err := c.store.Update(func(s *state.Snapshot) error {
		s.LatchActive = true
		s.LatchReason = nil
		if len(reason) != 0 {
			s.LatchReason = state.StringPtr(reason)
		}
		s.LatchEndTime = endTime
		return nil
	})
	if err != nil {
		c.mu.Unlock()
		return Result{}, err
	}

	if duration > 0 {
		c.armLocked(duration)
	}
	c.mu.Unlock()

	result := resultFrom(snap)
	if err := c.forcePumpOff(ctx); err != nil {
		result.Warning = fmt.Errorf("%w: %w", ErrActuatorWarning, err)
	}

	slog.Info("pump latched", "reason", reason, "end_time", endTime)
	c.refresh()

	return result, nil
}

// Off unlatches the pump and cancels any pending expiry.
func (c *Controller) Off() (Result, error) {
	slog.Debug(">>latch.Off")
	defer slog.Debug("<<latch.Off")

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerLocked()

	snap, err := c.store.Update(clearLatch)
	if err != nil {
		return Result{}, err
	}

	slog.Info("pump unlatched")
	c.refresh()

	return resultFrom(snap), nil
}

func (c *Controller) Toggle(ctx context.Context) (Result, error) {
	if c.Active() {
		return c.Off()
	}

	return c.On(ctx, "", 0)
}

func (c *Controller) SetReason(reason string) (Result, error) {
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return Result{}, ErrReasonTooLong
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.store.Update(func(s *state.Snapshot) error {
		if !s.LatchActive {
			return ErrNotLatched
		}

		s.LatchReason = nil
		if len(reason) != 0 {
			s.LatchReason = state.StringPtr(reason)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	c.refresh()

	return resultFrom(snap), nil
}

// Restore re-arms the expiry of a persisted timed latch. An expiry that passed
// while the process was down unlatches immediately.
func (c *Controller) Restore() {
	slog.Debug(">>latch.Restore")
	defer slog.Debug("<<latch.Restore")

	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.store.Snapshot()
	if !snap.LatchActive || snap.LatchEndTime == nil {
		return
	}

	remaining := snap.LatchEndTime.Sub(c.now())
	if remaining <= 0 {
		slog.Info("timed latch expired while stopped, unlatching", "end_time", snap.LatchEndTime)
		c.store.Update(clearLatch)
		return
	}

	slog.Info("restoring timed latch", "remaining", remaining)
	c.armLocked(remaining)
}

// Stop cancels a pending expiry without changing the persisted latch.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerLocked()
}

func (c *Controller) armLocked(d time.Duration) {
	c.generation++
	gen := c.generation
	c.timer = c.afterFunc(d, func() {
		c.expire(gen)
	})
}

func (c *Controller) stopTimerLocked() {
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	if c.timer == nil || gen != c.generation {
		c.mu.Unlock()
		slog.Debug("stale latch expiry ignored")
		return
	}

	c.timer = nil
	_, err := c.store.Update(clearLatch)
	c.mu.Unlock()

	if err != nil {
		slog.Error("failed to clear expired latch", "error", err)
		return
	}

	slog.Info("Timed latch expired.")
	if c.notifier != nil {
		c.notifier.Notify(ExpiredMessage)
	}
	c.refresh()
}

func (c *Controller) forcePumpOff(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.actuator.SetLevel(ctx, 0); err != nil {
		slog.Warn("failed to turn pump off while latching", "error", err)
		return err
	}

	c.store.Update(func(s *state.Snapshot) error {
		s.LastPumpTime = state.TimePtr(c.now())
		return nil
	})

	return nil
}

func (c *Controller) refresh() {
	if c.refresher != nil {
		c.refresher.RequestStatusUpdate()
	}
}

func clearLatch(s *state.Snapshot) error {
	s.LatchActive = false
	s.LatchReason = nil
	s.LatchEndTime = nil
	return nil
}

func resultFrom(snap state.Snapshot) Result {
	return Result{
		Active:  snap.LatchActive,
		Reason:  snap.Reason(),
		EndTime: snap.LatchEndTime,
	}
}
