package pump

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/KyleBrandon/lbis-server/internal/accounting"
	"github.com/KyleBrandon/lbis-server/internal/jobs"
	"github.com/KyleBrandon/lbis-server/internal/state"
)

func NewSupervisor(
	engine *accounting.Engine,
	store *state.Store,
	actuator Actuator,
	link Link,
	recorder JobRecorder,
	refresher StatusRefresher,
	cfg Config,
) *Supervisor {
	if cfg.MaxPumpDuration <= 0 {
		cfg.MaxPumpDuration = DefaultMaxPumpDuration
	}
	if cfg.ActuatorTimeout <= 0 {
		cfg.ActuatorTimeout = DefaultActuatorTimeout
	}
	if cfg.TimedPollInterval <= 0 {
		cfg.TimedPollInterval = DefaultTimedPollInterval
	}
	if cfg.BankedPollInterval <= 0 {
		cfg.BankedPollInterval = DefaultBankedPollInterval
	}
	if recorder == nil {
		recorder = jobs.NewRecorder(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Supervisor{
		engine:    engine,
		store:     store,
		actuator:  actuator,
		link:      link,
		recorder:  recorder,
		refresher: refresher,
		cfg:       cfg,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *Supervisor) MaxPumpSeconds() int {
	return int(s.cfg.MaxPumpDuration / time.Second)
}

// Recover turns the pump off when the state file shows a run that was live
// when the process stopped, then clears the marker.
func (s *Supervisor) Recover(ctx context.Context) {
	slog.Debug(">>pump.Recover")
	defer slog.Debug("<<pump.Recover")

	snap := s.store.Snapshot()
	if snap.PumpTaskEndTime == nil && len(snap.PumpTaskMode) == 0 {
		return
	}

	slog.Warn("found a pump task left over from the previous run, turning the pump off",
		"mode", snap.PumpTaskMode,
		"end_time", snap.PumpTaskEndTime)

	if err := s.setLevel(ctx, 0); err != nil {
		slog.Error("failed to turn off the pump left over from the previous run", "error", err)
	}

	s.store.Update(clearTaskMarkers)
}

// StartTimed runs the pump on session time. A timed run already in progress
// is extended instead; what cannot be granted goes to the bank.
func (s *Supervisor) StartTimed(ctx context.Context, seconds int) (StartResult, error) {
	slog.Debug(">>StartTimed", "seconds", seconds)
	defer slog.Debug("<<StartTimed")

	if err := s.validate(seconds); err != nil {
		return StartResult{}, err
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	if err := s.ready(); err != nil {
		return StartResult{}, err
	}

	if t := s.liveTaskLocked(); t != nil {
		if t.mode != state.PumpModeTimed {
			s.mu.Unlock()
			return StartResult{}, ErrTaskRunning
		}

		return s.extendLocked(ctx, t, seconds), nil
	}
	s.mu.Unlock()

	snap := s.store.Snapshot()
	if snap.SessionTimeRemaining <= 0 {
		return StartResult{}, ErrNoSessionTime
	}

	run := min(seconds, snap.SessionTimeRemaining)
	if err := s.setLevel(ctx, snap.PumpIntensity); err != nil {
		return StartResult{}, fmt.Errorf("%w: %w", ErrActuator, err)
	}

	return s.spawn(state.PumpModeTimed, run, snap.PumpIntensity), nil
}

// StartBanked runs the pump on banked time. Each second run costs one second
// of both the bank and the session.
func (s *Supervisor) StartBanked(ctx context.Context, seconds int) (StartResult, error) {
	slog.Debug(">>StartBanked", "seconds", seconds)
	defer slog.Debug("<<StartBanked")

	if seconds <= 0 {
		return StartResult{}, ErrInvalidDuration
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	if err := s.ready(); err != nil {
		return StartResult{}, err
	}

	if t := s.liveTaskLocked(); t != nil {
		s.mu.Unlock()
		return StartResult{}, ErrTaskRunning
	}
	s.mu.Unlock()

	snap := s.store.Snapshot()
	if snap.BankedTime <= 0 {
		return StartResult{}, ErrNoBankedTime
	}
	if snap.SessionTimeRemaining <= 0 {
		return StartResult{}, ErrNoSessionTime
	}

	run := min(seconds, snap.BankedTime, snap.SessionTimeRemaining, s.MaxPumpSeconds())
	if run <= 0 {
		return StartResult{}, ErrNoBankedTime
	}

	if err := s.setLevel(ctx, snap.PumpIntensity); err != nil {
		return StartResult{}, fmt.Errorf("%w: %w", ErrActuator, err)
	}

	return s.spawn(state.PumpModeBanked, run, snap.PumpIntensity), nil
}

// ManualOn stops any supervised run and turns the pump on at the stored
// intensity. Budgets are not touched beyond settling the stopped run.
func (s *Supervisor) ManualOn(ctx context.Context) (float64, error) {
	slog.Debug(">>ManualOn")
	defer slog.Debug("<<ManualOn")

	s.startMu.Lock()
	defer s.startMu.Unlock()

	snap := s.store.Snapshot()
	if snap.LatchActive {
		return 0, ErrLatched
	}

	s.stopTask()

	if err := s.setLevel(ctx, snap.PumpIntensity); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrActuator, err)
	}

	slog.Info("pump turned on manually", "intensity", snap.PumpIntensity)
	s.refresh()

	return snap.PumpIntensity, nil
}

func (s *Supervisor) ManualOff(ctx context.Context) error {
	slog.Debug(">>ManualOff")
	defer slog.Debug("<<ManualOff")

	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.stopTask()

	if err := s.setLevel(ctx, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrActuator, err)
	}

	slog.Info("pump turned off manually")
	s.refresh()

	return nil
}

// SetLevel moves a running pump to a new intensity without interrupting it.
// s.mu is held across the push so a run cannot be cleaned up in between.
func (s *Supervisor) SetLevel(ctx context.Context, level float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task == nil || s.task.finishing {
		return ErrNotRunning
	}

	return s.setLevel(ctx, level)
}

func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.task != nil && !s.task.finishing
}

func (s *Supervisor) Task() (TaskInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.task
	if t == nil || t.finishing {
		return TaskInfo{}, false
	}

	return TaskInfo{JobID: t.id, Mode: t.mode, Start: t.start, EndTime: t.end}, true
}

// AccrueSecond debits the session for the time a timed run has used so far.
// It reports true when this emptied the session.
func (s *Supervisor) AccrueSecond() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.task
	if t == nil || t.finishing || t.mode != state.PumpModeTimed {
		return false
	}

	elapsed := int(minTime(s.now(), t.end).Sub(t.start) / time.Second)
	due := elapsed - t.debited
	if due <= 0 {
		return false
	}

	change := s.engine.DebitSession(due)
	t.debited += due

	return change.Amount > 0 && change.After == 0
}

// Shutdown stops any live run, waits for its cleanup and rejects new runs.
func (s *Supervisor) Shutdown() {
	slog.Debug(">>pump.Shutdown")
	defer slog.Debug("<<pump.Shutdown")

	s.cancel()
	s.wg.Wait()
}

func (s *Supervisor) validate(seconds int) error {
	if seconds <= 0 {
		return ErrInvalidDuration
	}

	if seconds > s.MaxPumpSeconds() {
		return fmt.Errorf("%d seconds (limit %d): %w", seconds, s.MaxPumpSeconds(), ErrExceedsMaximum)
	}

	return nil
}

func (s *Supervisor) ready() error {
	if s.ctx.Err() != nil {
		return ErrShutdown
	}

	if s.store.Snapshot().LatchActive {
		return ErrLatched
	}

	if !s.link.Up() {
		return ErrServiceDown
	}

	return nil
}

// liveTaskLocked returns with s.mu held. A task that is already cleaning up
// is waited for and treated as gone.
func (s *Supervisor) liveTaskLocked() *task {
	for {
		s.mu.Lock()
		t := s.task
		if t == nil || !t.finishing {
			return t
		}
		s.mu.Unlock()

		<-t.done
	}
}

func (s *Supervisor) extendLocked(ctx context.Context, t *task, seconds int) StartResult {
	now := s.now()
	remaining := ceilSeconds(t.end.Sub(now))
	maxSeconds := s.MaxPumpSeconds()
	session := s.store.Snapshot().SessionTimeRemaining

	// session time the run holds but has not been debited for yet
	reserved := wholeSeconds(t.end.Sub(t.start)) - t.debited

	available := max(min(session-reserved, maxSeconds-remaining), 0)
	granted := min(seconds, available)
	t.end = t.end.Add(time.Duration(granted) * time.Second)

	result := StartResult{
		JobID:    t.id,
		Mode:     t.mode,
		Seconds:  remaining + granted,
		EndTime:  t.end,
		Extended: true,
		Granted:  granted,
		Overflow: seconds - granted,
	}
	s.mu.Unlock()

	if granted > 0 {
		s.store.Update(func(snap *state.Snapshot) error {
			snap.PumpTaskEndTime = state.TimePtr(result.EndTime)
			return nil
		})
		s.recorder.Extend(ctx, result.JobID, result.EndTime)
	}

	result.Banked = s.engine.DepositBank(result.Overflow).Amount

	slog.Info("extended timed pump",
		"job_id", result.JobID,
		"requested", seconds,
		"granted", granted,
		"overflow", result.Overflow,
		"banked", result.Banked)
	s.refresh()

	return result
}

func (s *Supervisor) spawn(mode state.PumpMode, seconds int, intensity float64) StartResult {
	now := s.now()
	end := now.Add(time.Duration(seconds) * time.Second)

	t := &task{
		id:    s.recorder.Start(s.ctx, string(mode), now, end),
		mode:  mode,
		start: now,
		end:   end,
		done:  make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t.cancel = cancel

	s.mu.Lock()
	s.task = t
	s.mu.Unlock()

	s.store.Update(func(snap *state.Snapshot) error {
		snap.PumpTaskEndTime = state.TimePtr(end)
		snap.PumpTaskMode = mode
		if mode == state.PumpModeTimed {
			snap.SessionPumpStart = state.TimePtr(now)
		}
		return nil
	})

	s.wg.Add(1)
	go s.run(ctx, t)

	slog.Info("pump task started", "job_id", t.id, "mode", mode, "seconds", seconds, "intensity", intensity)
	s.refresh()

	return StartResult{
		JobID:     t.id,
		Mode:      mode,
		Seconds:   seconds,
		Intensity: intensity,
		EndTime:   end,
	}
}

func (s *Supervisor) run(ctx context.Context, t *task) {
	slog.Debug(">>pump.run", "job_id", t.id, "mode", t.mode)
	defer slog.Debug("<<pump.run", "job_id", t.id)

	defer s.wg.Done()
	defer t.cancel()

	// every exit path ends here
	defer s.cleanup(t)

	if t.mode == state.PumpModeBanked {
		s.runBanked(ctx, t)
		return
	}

	s.runTimed(ctx, t)
}

func (s *Supervisor) runTimed(ctx context.Context, t *task) {
	ticker := time.NewTicker(s.cfg.TimedPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.stopLocked(t, jobs.JOBRESULT_CANCELLED, s.now())
			s.mu.Unlock()
			return

		case <-ticker.C:
		}

		now := s.now()

		s.mu.Lock()
		if !now.Before(t.end) {
			t.result = jobs.JOBRESULT_COMPLETED
		} else if reason := s.interruption(); len(reason) != 0 {
			remaining := wholeSeconds(t.end.Sub(t.start)) - wholeSeconds(now.Sub(t.start))
			t.banked = s.engine.DepositBank(remaining).Amount
			t.result = jobs.JOBRESULT_INTERRUPTED
			slog.Info("timed pump interrupted", "job_id", t.id, "reason", reason, "remaining", remaining, "banked", t.banked)
		} else if s.store.Snapshot().SessionTimeRemaining <= 0 {
			t.result = jobs.JOBRESULT_EXHAUSTED
			slog.Info("session time ran out during timed pump", "job_id", t.id)
		}

		if len(t.result) != 0 {
			t.finishing = true
			t.stoppedAt = now
		}
		s.mu.Unlock()

		if t.finishing {
			return
		}
	}
}

func (s *Supervisor) runBanked(ctx context.Context, t *task) {
	ticker := time.NewTicker(s.cfg.BankedPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.stopLocked(t, jobs.JOBRESULT_CANCELLED, s.now())
			s.mu.Unlock()
			return

		case <-ticker.C:
		}

		now := s.now()

		s.mu.Lock()
		if !s.settleBankedLocked(t, now) {
			t.result = jobs.JOBRESULT_EXHAUSTED
		} else if !now.Before(t.end) {
			t.result = jobs.JOBRESULT_COMPLETED
		} else if reason := s.interruption(); len(reason) != 0 {
			t.result = jobs.JOBRESULT_INTERRUPTED
			slog.Info("banked pump interrupted", "job_id", t.id, "reason", reason)
		} else if snap := s.store.Snapshot(); snap.BankedTime <= 0 || snap.SessionTimeRemaining <= 0 {
			t.result = jobs.JOBRESULT_EXHAUSTED
		}

		if len(t.result) != 0 {
			t.finishing = true
			t.stoppedAt = now
		}
		s.mu.Unlock()

		if t.finishing {
			return
		}
	}
}

// settleBankedLocked takes the whole seconds used since the last settle from
// both budgets. It reports false when either budget could not cover them.
func (s *Supervisor) settleBankedLocked(t *task, now time.Time) bool {
	elapsed := int(minTime(now, t.end).Sub(t.start) / time.Second)
	due := elapsed - t.debited
	if due <= 0 {
		return true
	}

	taken := s.engine.ConsumeBanked(due)
	t.debited += taken

	return taken == due
}

func (s *Supervisor) cleanup(t *task) {
	slog.Debug(">>pump.cleanup", "job_id", t.id)
	defer slog.Debug("<<pump.cleanup")

	defer close(t.done)

	s.mu.Lock()
	s.stopLocked(t, jobs.JOBRESULT_CANCELLED, s.now())
	stopped := t.stoppedAt
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ActuatorTimeout)
	defer cancel()

	if err := s.setLevel(ctx, 0); err != nil {
		slog.Error("failed to turn the pump off after a run", "job_id", t.id, "error", err)
	}

	now := s.now()

	// time spent waiting on the off command is not charged
	s.mu.Lock()
	if t.mode == state.PumpModeTimed {
		consumed := wholeSeconds(minTime(stopped, t.end).Sub(t.start))
		if owed := consumed - t.debited; owed > 0 {
			s.engine.DebitSession(owed)
			t.debited += owed
		}
	} else {
		s.settleBankedLocked(t, stopped)
	}

	outcome := jobs.Outcome{
		Result:         t.result,
		EndTime:        now,
		SessionSeconds: t.debited,
		BankedSeconds:  t.banked,
	}
	if t.mode == state.PumpModeBanked {
		outcome.BankSeconds = t.debited
	}
	s.mu.Unlock()

	s.store.Update(clearTaskMarkers)
	s.recorder.Finish(ctx, t.id, outcome)

	slog.Info("pump task finished",
		"job_id", t.id,
		"mode", t.mode,
		"result", outcome.Result,
		"session_seconds", outcome.SessionSeconds,
		"bank_seconds", outcome.BankSeconds,
		"banked_seconds", outcome.BankedSeconds)
	s.refresh()

	s.mu.Lock()
	if s.task == t {
		s.task = nil
	}
	s.mu.Unlock()
}

// stopLocked marks t as finishing. The first caller decides the result and
// the moment the run is charged up to.
func (s *Supervisor) stopLocked(t *task, result string, at time.Time) {
	t.finishing = true
	if len(t.result) == 0 {
		t.result = result
	}
	if t.stoppedAt.IsZero() {
		t.stoppedAt = at
	}
}

// stopTask cancels the live run and waits for its cleanup.
func (s *Supervisor) stopTask() {
	s.mu.Lock()
	t := s.task
	s.mu.Unlock()

	if t == nil {
		return
	}

	t.cancel()
	<-t.done
}

func (s *Supervisor) interruption() string {
	if s.store.Snapshot().LatchActive {
		return INTERRUPT_LATCHED
	}

	if !s.link.Up() {
		return INTERRUPT_SERVICE_DOWN
	}

	return ""
}

func (s *Supervisor) setLevel(ctx context.Context, level float64) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ActuatorTimeout)
	defer cancel()

	if err := s.actuator.SetLevel(ctx, level); err != nil {
		return err
	}

	s.store.Update(func(snap *state.Snapshot) error {
		snap.LastPumpTime = state.TimePtr(s.now())
		return nil
	})

	return nil
}

func (s *Supervisor) refresh() {
	if s.refresher != nil {
		s.refresher.RequestStatusUpdate()
	}
}

func clearTaskMarkers(snap *state.Snapshot) error {
	snap.PumpTaskEndTime = nil
	snap.PumpTaskMode = ""
	snap.SessionPumpStart = nil
	return nil
}

func wholeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}

	return int(math.Round(d.Seconds()))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}

	return int(math.Ceil(d.Seconds()))
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}

	return b
}
