package pump

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/KyleBrandon/lbis-server/internal/accounting"
	"github.com/KyleBrandon/lbis-server/internal/actuator"
	"github.com/KyleBrandon/lbis-server/internal/jobs"
	"github.com/KyleBrandon/lbis-server/internal/latch"
	"github.com/KyleBrandon/lbis-server/internal/state"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.Lock()
	defer c.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.Lock()
	defer c.Unlock()

	c.now = c.now.Add(d)
}

type mockRecorder struct {
	sync.Mutex
	started  []uuid.UUID
	extended map[uuid.UUID]time.Time
	outcomes map[uuid.UUID]jobs.Outcome
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{
		extended: make(map[uuid.UUID]time.Time),
		outcomes: make(map[uuid.UUID]jobs.Outcome),
	}
}

func (m *mockRecorder) Start(ctx context.Context, mode string, start time.Time, plannedEnd time.Time) uuid.UUID {
	m.Lock()
	defer m.Unlock()

	id := uuid.New()
	m.started = append(m.started, id)
	return id
}

func (m *mockRecorder) Extend(ctx context.Context, jobId uuid.UUID, plannedEnd time.Time) {
	m.Lock()
	defer m.Unlock()

	m.extended[jobId] = plannedEnd
}

func (m *mockRecorder) Finish(ctx context.Context, jobId uuid.UUID, outcome jobs.Outcome) {
	m.Lock()
	defer m.Unlock()

	m.outcomes[jobId] = outcome
}

func (m *mockRecorder) outcome(jobId uuid.UUID) (jobs.Outcome, bool) {
	m.Lock()
	defer m.Unlock()

	o, ok := m.outcomes[jobId]
	return o, ok
}

type harness struct {
	*Supervisor
	store    *state.Store
	engine   *accounting.Engine
	device   *actuator.MockActuator
	link     *actuator.Reachability
	recorder *mockRecorder
	clock    *fakeClock
}

func newHarness(t *testing.T, session int, bank int) *harness {
	t.Helper()

	store := state.NewStore(filepath.Join(t.TempDir(), "session.json"), 1800)
	require.NoError(t, store.Load())
	_, err := store.Update(func(s *state.Snapshot) error {
		s.SessionTimeRemaining = session
		s.BankedTime = bank
		return nil
	})
	require.NoError(t, err)

	h := &harness{
		store:    store,
		engine:   accounting.NewEngine(store, accounting.Limits{MaxBankedTime: 3600}, nil),
		device:   actuator.NewMockActuator(),
		link:     actuator.NewReachability(),
		recorder: newMockRecorder(),
		clock:    &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}

	h.Supervisor = NewSupervisor(h.engine, store, h.device, h.link, h.recorder, nil, Config{
		MaxPumpDuration:    60 * time.Second,
		TimedPollInterval:  2 * time.Millisecond,
		BankedPollInterval: 2 * time.Millisecond,
	})
	h.Supervisor.now = h.clock.Now
	h.engine.AttachPump(h.Supervisor)

	t.Cleanup(h.Shutdown)

	return h
}

// slowOffActuator spends delay of clock time on every off command.
type slowOffActuator struct {
	*actuator.MockActuator
	clock *fakeClock
	delay time.Duration
}

func (a *slowOffActuator) SetLevel(ctx context.Context, level float64) error {
	if level == 0 {
		a.clock.Advance(a.delay)
	}

	return a.MockActuator.SetLevel(ctx, level)
}

// gatedActuator holds the first command for level gate until release is closed.
type gatedActuator struct {
	*actuator.MockActuator
	gate    float64
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedActuator(device *actuator.MockActuator, gate float64) *gatedActuator {
	return &gatedActuator{
		MockActuator: device,
		gate:         gate,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (a *gatedActuator) SetLevel(ctx context.Context, level float64) error {
	if level == a.gate {
		a.once.Do(func() {
			close(a.entered)
			<-a.release
		})
	}

	return a.MockActuator.SetLevel(ctx, level)
}

// waitForTask blocks until the live task, if any, has finished cleanup.
func (h *harness) waitForTask(t *testing.T) {
	t.Helper()

	h.mu.Lock()
	tk := h.task
	h.mu.Unlock()

	if tk == nil {
		return
	}

	select {
	case <-tk.done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump task did not finish")
	}
}

func (h *harness) snapshot() state.Snapshot {
	return h.store.Snapshot()
}

func TestStartTimedValidation(t *testing.T) {
	t.Run("should reject a request above the maximum duration", func(t *testing.T) {
		h := newHarness(t, 600, 0)

		_, err := h.StartTimed(context.Background(), 90)
		assert.ErrorIs(t, err, ErrExceedsMaximum)
		assert.Empty(t, h.device.Levels())
		assert.False(t, h.Running())
	})

	t.Run("should reject a non positive request", func(t *testing.T) {
		h := newHarness(t, 600, 0)

		_, err := h.StartTimed(context.Background(), 0)
		assert.ErrorIs(t, err, ErrInvalidDuration)
	})

	t.Run("should reject while latched", func(t *testing.T) {
		h := newHarness(t, 600, 0)
		h.store.Update(func(s *state.Snapshot) error {
			s.LatchActive = true
			return nil
		})

		_, err := h.StartTimed(context.Background(), 30)
		assert.ErrorIs(t, err, ErrLatched)
	})

	t.Run("should reject while the service is down", func(t *testing.T) {
		h := newHarness(t, 600, 0)
		h.link.Set(false)

		_, err := h.StartTimed(context.Background(), 30)
		assert.ErrorIs(t, err, ErrServiceDown)
	})

	t.Run("should reject without session time", func(t *testing.T) {
		h := newHarness(t, 0, 100)

		_, err := h.StartTimed(context.Background(), 30)
		assert.ErrorIs(t, err, ErrNoSessionTime)
	})

	t.Run("should not spawn when the pump cannot be reached", func(t *testing.T) {
		h := newHarness(t, 600, 0)
		h.device.SetError(errors.New("connection refused"))

		_, err := h.StartTimed(context.Background(), 30)
		assert.ErrorIs(t, err, ErrActuator)
		assert.False(t, h.Running())
		assert.Nil(t, h.snapshot().PumpTaskEndTime)
	})
}

func TestTimedRunClampedToSession(t *testing.T) {
	h := newHarness(t, 10, 0)

	result, err := h.StartTimed(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Seconds)
	assert.Equal(t, state.PumpModeTimed, result.Mode)
	assert.True(t, h.Running())

	snap := h.snapshot()
	require.NotNil(t, snap.PumpTaskEndTime)
	assert.Equal(t, state.PumpModeTimed, snap.PumpTaskMode)

	h.clock.Advance(10 * time.Second)
	h.waitForTask(t)

	snap = h.snapshot()
	assert.Equal(t, 0, snap.SessionTimeRemaining)
	assert.Equal(t, 0, snap.BankedTime)
	assert.Nil(t, snap.PumpTaskEndTime)
	assert.Empty(t, snap.PumpTaskMode)
	assert.Equal(t, 0.0, h.device.Current())
	assert.Equal(t, []float64{1.0, 0}, h.device.Levels())

	outcome, ok := h.recorder.outcome(result.JobID)
	require.True(t, ok)
	assert.Equal(t, jobs.JOBRESULT_COMPLETED, outcome.Result)
	assert.Equal(t, 10, outcome.SessionSeconds)
	assert.False(t, h.Running())
}

func TestAccrueSecondIsNotDoubleCounted(t *testing.T) {
	h := newHarness(t, 100, 0)

	_, err := h.StartTimed(context.Background(), 30)
	require.NoError(t, err)

	h.clock.Advance(5 * time.Second)
	assert.False(t, h.AccrueSecond())
	assert.Equal(t, 95, h.snapshot().SessionTimeRemaining)

	h.clock.Advance(1 * time.Second)
	h.AccrueSecond()
	h.AccrueSecond()
	assert.Equal(t, 94, h.snapshot().SessionTimeRemaining)

	h.clock.Advance(24 * time.Second)
	h.waitForTask(t)

	assert.Equal(t, 70, h.snapshot().SessionTimeRemaining, "a 30 second run debits exactly 30")
}

func TestAccrueSecondReportsEmptySession(t *testing.T) {
	h := newHarness(t, 3, 0)

	_, err := h.StartTimed(context.Background(), 3)
	require.NoError(t, err)

	h.mu.Lock()
	h.task.end = h.task.end.Add(time.Hour)
	h.mu.Unlock()

	h.clock.Advance(3 * time.Second)
	assert.True(t, h.AccrueSecond())

	h.waitForTask(t)
	assert.Equal(t, 0, h.snapshot().SessionTimeRemaining)
	assert.Equal(t, 0, h.snapshot().BankedTime, "running out of session banks nothing")
}

func TestAccrueSecondSkipsBankedRuns(t *testing.T) {
	h := newHarness(t, 100, 100)

	_, err := h.StartBanked(context.Background(), 30)
	require.NoError(t, err)

	assert.False(t, h.AccrueSecond())
}

func TestExtendTimedRun(t *testing.T) {
	h := newHarness(t, 100, 0)

	first, err := h.StartTimed(context.Background(), 55)
	require.NoError(t, err)

	result, err := h.StartTimed(context.Background(), 20)
	require.NoError(t, err)
	assert.True(t, result.Extended)
	assert.Equal(t, first.JobID, result.JobID)
	assert.Equal(t, 5, result.Granted)
	assert.Equal(t, 15, result.Overflow)
	assert.Equal(t, 15, result.Banked)
	assert.Equal(t, first.EndTime.Add(5*time.Second), result.EndTime)

	snap := h.snapshot()
	assert.Equal(t, 15, snap.BankedTime)
	require.NotNil(t, snap.PumpTaskEndTime)
	assert.True(t, snap.PumpTaskEndTime.Equal(result.EndTime))
	assert.Len(t, h.device.Levels(), 1, "extending does not touch the pump")

	h.clock.Advance(60 * time.Second)
	h.waitForTask(t)

	assert.Equal(t, 40, h.snapshot().SessionTimeRemaining)
	assert.Equal(t, 0.0, h.device.Current())
}

func TestExtendLimitedBySession(t *testing.T) {
	h := newHarness(t, 40, 0)

	_, err := h.StartTimed(context.Background(), 30)
	require.NoError(t, err)

	h.clock.Advance(10 * time.Second)
	h.AccrueSecond()

	// 30 session left, 20 already reserved
	result, err := h.StartTimed(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Granted)
	assert.Equal(t, 15, result.Banked)
}

func TestExtendAfterPartialSecond(t *testing.T) {
	t.Run("nothing is granted once the session is fully reserved", func(t *testing.T) {
		h := newHarness(t, 10, 0)

		first, err := h.StartTimed(context.Background(), 10)
		require.NoError(t, err)

		h.clock.Advance(2600 * time.Millisecond)
		h.AccrueSecond()
		assert.Equal(t, 8, h.snapshot().SessionTimeRemaining)

		result, err := h.StartTimed(context.Background(), 5)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Granted)
		assert.Equal(t, 5, result.Overflow)
		assert.Equal(t, 5, result.Banked)
		assert.True(t, result.EndTime.Equal(first.EndTime))

		h.clock.Advance(8 * time.Second)
		h.waitForTask(t)

		assert.Equal(t, 0, h.snapshot().SessionTimeRemaining)
		outcome, ok := h.recorder.outcome(first.JobID)
		require.True(t, ok)
		assert.Equal(t, 10, outcome.SessionSeconds)
	})

	t.Run("without an accrual tick", func(t *testing.T) {
		h := newHarness(t, 10, 0)

		_, err := h.StartTimed(context.Background(), 10)
		require.NoError(t, err)

		h.clock.Advance(2600 * time.Millisecond)

		result, err := h.StartTimed(context.Background(), 5)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Granted)
	})

	t.Run("unreserved session time is granted", func(t *testing.T) {
		h := newHarness(t, 20, 0)

		first, err := h.StartTimed(context.Background(), 10)
		require.NoError(t, err)

		h.clock.Advance(2600 * time.Millisecond)
		h.AccrueSecond()

		result, err := h.StartTimed(context.Background(), 15)
		require.NoError(t, err)
		assert.Equal(t, 10, result.Granted)
		assert.Equal(t, 5, result.Banked)
		assert.True(t, result.EndTime.Equal(first.EndTime.Add(10*time.Second)))

		h.clock.Advance(20 * time.Second)
		h.waitForTask(t)

		snap := h.snapshot()
		assert.Equal(t, 0, snap.SessionTimeRemaining)
		assert.Equal(t, 5, snap.BankedTime)
	})
}

func TestBankedRun(t *testing.T) {
	h := newHarness(t, 100, 40)

	result, err := h.StartBanked(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 40, result.Seconds)

	h.clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool {
		snap := h.snapshot()
		return snap.BankedTime == 30 && snap.SessionTimeRemaining == 90
	}, 2*time.Second, 5*time.Millisecond, "banked time is consumed while running")

	h.clock.Advance(30 * time.Second)
	h.waitForTask(t)

	snap := h.snapshot()
	assert.Equal(t, 0, snap.BankedTime)
	assert.Equal(t, 60, snap.SessionTimeRemaining)
	assert.Equal(t, 0.0, h.device.Current())

	outcome, ok := h.recorder.outcome(result.JobID)
	require.True(t, ok)
	assert.Equal(t, 40, outcome.BankSeconds)
	assert.Equal(t, 40, outcome.SessionSeconds)
}

func TestBankedRunValidation(t *testing.T) {
	t.Run("should reject an empty bank", func(t *testing.T) {
		h := newHarness(t, 100, 0)
		_, err := h.StartBanked(context.Background(), 10)
		assert.ErrorIs(t, err, ErrNoBankedTime)
	})

	t.Run("should reject an empty session", func(t *testing.T) {
		h := newHarness(t, 0, 100)
		_, err := h.StartBanked(context.Background(), 10)
		assert.ErrorIs(t, err, ErrNoSessionTime)
	})

	t.Run("should clamp to the maximum duration", func(t *testing.T) {
		h := newHarness(t, 1000, 1000)
		result, err := h.StartBanked(context.Background(), 500)
		require.NoError(t, err)
		assert.Equal(t, 60, result.Seconds)
	})

	t.Run("should reject while any run is live", func(t *testing.T) {
		h := newHarness(t, 100, 100)

		_, err := h.StartTimed(context.Background(), 30)
		require.NoError(t, err)

		_, err = h.StartBanked(context.Background(), 10)
		assert.ErrorIs(t, err, ErrTaskRunning)
	})

	t.Run("should not extend a banked run with session time", func(t *testing.T) {
		h := newHarness(t, 100, 100)

		_, err := h.StartBanked(context.Background(), 30)
		require.NoError(t, err)

		_, err = h.StartTimed(context.Background(), 10)
		assert.ErrorIs(t, err, ErrTaskRunning)
	})
}

func TestLatchInterruptsTimedRun(t *testing.T) {
	h := newHarness(t, 100, 0)
	controller := latch.NewController(h.store, h.device, nil, nil)

	result, err := h.StartTimed(context.Background(), 30)
	require.NoError(t, err)

	h.clock.Advance(10 * time.Second)
	_, err = controller.On(context.Background(), "stop", 0)
	require.NoError(t, err)

	h.waitForTask(t)

	snap := h.snapshot()
	assert.Equal(t, 20, snap.BankedTime)
	assert.Equal(t, 90, snap.SessionTimeRemaining)
	assert.Equal(t, 0.0, h.device.Current())

	outcome, ok := h.recorder.outcome(result.JobID)
	require.True(t, ok)
	assert.Equal(t, jobs.JOBRESULT_INTERRUPTED, outcome.Result)
	assert.Equal(t, 20, outcome.BankedSeconds)
}

func TestSlowOffCommandIsNotCharged(t *testing.T) {
	t.Run("interrupted", func(t *testing.T) {
		h := newHarness(t, 100, 0)
		h.Supervisor.actuator = &slowOffActuator{MockActuator: h.device, clock: h.clock, delay: 3 * time.Second}
		controller := latch.NewController(h.store, h.device, nil, nil)

		result, err := h.StartTimed(context.Background(), 30)
		require.NoError(t, err)

		h.clock.Advance(10 * time.Second)
		_, err = controller.On(context.Background(), "stop", 0)
		require.NoError(t, err)

		h.waitForTask(t)

		snap := h.snapshot()
		assert.Equal(t, 20, snap.BankedTime)
		assert.Equal(t, 90, snap.SessionTimeRemaining, "debited plus banked equals the reserved 30")

		outcome, ok := h.recorder.outcome(result.JobID)
		require.True(t, ok)
		assert.Equal(t, 10, outcome.SessionSeconds)
	})

	t.Run("cancelled", func(t *testing.T) {
		h := newHarness(t, 100, 0)
		h.Supervisor.actuator = &slowOffActuator{MockActuator: h.device, clock: h.clock, delay: 3 * time.Second}

		_, err := h.StartTimed(context.Background(), 30)
		require.NoError(t, err)

		h.clock.Advance(10 * time.Second)
		require.NoError(t, h.ManualOff(context.Background()))

		assert.Equal(t, 90, h.snapshot().SessionTimeRemaining)
	})

	t.Run("banked", func(t *testing.T) {
		h := newHarness(t, 100, 50)
		h.Supervisor.actuator = &slowOffActuator{MockActuator: h.device, clock: h.clock, delay: 3 * time.Second}

		_, err := h.StartBanked(context.Background(), 30)
		require.NoError(t, err)

		h.clock.Advance(10 * time.Second)
		h.link.Set(false)
		h.waitForTask(t)

		snap := h.snapshot()
		assert.Equal(t, 40, snap.BankedTime)
		assert.Equal(t, 90, snap.SessionTimeRemaining)
	})
}

func TestServiceDownInterruptsRuns(t *testing.T) {
	t.Run("timed", func(t *testing.T) {
		h := newHarness(t, 100, 0)

		_, err := h.StartTimed(context.Background(), 30)
		require.NoError(t, err)

		h.clock.Advance(12 * time.Second)
		h.link.Set(false)
		h.waitForTask(t)

		assert.Equal(t, 18, h.snapshot().BankedTime)
		assert.Equal(t, 88, h.snapshot().SessionTimeRemaining)
	})

	t.Run("banked", func(t *testing.T) {
		h := newHarness(t, 100, 50)

		_, err := h.StartBanked(context.Background(), 30)
		require.NoError(t, err)

		h.clock.Advance(12 * time.Second)
		h.link.Set(false)
		h.waitForTask(t)

		snap := h.snapshot()
		assert.Equal(t, 38, snap.BankedTime, "unused banked time stays in the bank")
		assert.Equal(t, 88, snap.SessionTimeRemaining)
	})
}

func TestSessionRemovedDuringTimedRun(t *testing.T) {
	h := newHarness(t, 100, 0)

	_, err := h.StartTimed(context.Background(), 30)
	require.NoError(t, err)

	h.clock.Advance(5 * time.Second)
	_, err = h.engine.RemoveSessionTime(5)
	require.NoError(t, err)

	h.waitForTask(t)

	snap := h.snapshot()
	assert.Equal(t, 0, snap.SessionTimeRemaining)
	assert.Equal(t, 0, snap.BankedTime)
	assert.Equal(t, 0.0, h.device.Current())
}

func TestManualControl(t *testing.T) {
	t.Run("manual off cancels the run and settles only consumed time", func(t *testing.T) {
		h := newHarness(t, 100, 0)

		result, err := h.StartTimed(context.Background(), 30)
		require.NoError(t, err)

		h.clock.Advance(7 * time.Second)
		require.NoError(t, h.ManualOff(context.Background()))

		assert.False(t, h.Running())
		snap := h.snapshot()
		assert.Equal(t, 93, snap.SessionTimeRemaining)
		assert.Equal(t, 0, snap.BankedTime)
		assert.Equal(t, 0.0, h.device.Current())

		outcome, ok := h.recorder.outcome(result.JobID)
		require.True(t, ok)
		assert.Equal(t, jobs.JOBRESULT_CANCELLED, outcome.Result)
	})

	t.Run("manual on replaces the run", func(t *testing.T) {
		h := newHarness(t, 100, 0)
		h.store.Update(func(s *state.Snapshot) error {
			s.PumpIntensity = 0.6
			return nil
		})

		_, err := h.StartTimed(context.Background(), 30)
		require.NoError(t, err)

		level, err := h.ManualOn(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0.6, level)
		assert.False(t, h.Running())
		assert.Equal(t, 0.6, h.device.Current())
		assert.Equal(t, []float64{0.6, 0, 0.6}, h.device.Levels())
		assert.Equal(t, 100, h.snapshot().SessionTimeRemaining)
	})

	t.Run("manual on is refused while latched", func(t *testing.T) {
		h := newHarness(t, 100, 0)
		h.store.Update(func(s *state.Snapshot) error {
			s.LatchActive = true
			return nil
		})

		_, err := h.ManualOn(context.Background())
		assert.ErrorIs(t, err, ErrLatched)
		assert.Empty(t, h.device.Levels())
	})

	t.Run("manual off reports an unreachable pump", func(t *testing.T) {
		h := newHarness(t, 100, 0)
		h.device.SetDown(true)

		err := h.ManualOff(context.Background())
		assert.ErrorIs(t, err, ErrActuator)
	})
}

func TestIntensityChangeReachesRunningPump(t *testing.T) {
	h := newHarness(t, 100, 0)

	_, err := h.StartTimed(context.Background(), 30)
	require.NoError(t, err)

	result, err := h.engine.SetIntensity(context.Background(), 0.4)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, 0.4, h.device.Current())
	assert.True(t, h.Running(), "changing intensity does not interrupt the run")
}

func TestIntensityPushCannotOutliveTheRun(t *testing.T) {
	h := newHarness(t, 100, 0)
	gated := newGatedActuator(h.device, 0.8)
	h.Supervisor.actuator = gated

	_, err := h.StartTimed(context.Background(), 10)
	require.NoError(t, err)

	pushed := make(chan accounting.IntensityChange, 1)
	go func() {
		result, _ := h.engine.SetIntensity(context.Background(), 0.8)
		pushed <- result
	}()

	select {
	case <-gated.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("intensity push never reached the pump")
	}

	// the run is due to end while the push is still in flight
	h.clock.Advance(10 * time.Second)
	close(gated.release)

	select {
	case result := <-pushed:
		assert.True(t, result.Applied)
	case <-time.After(2 * time.Second):
		t.Fatal("intensity push did not return")
	}

	h.waitForTask(t)

	assert.False(t, h.Running())
	assert.Equal(t, 0.0, h.device.Current())
	assert.Equal(t, []float64{1.0, 0.8, 0}, h.device.Levels())

	result, err := h.engine.SetIntensity(context.Background(), 0.5)
	require.NoError(t, err)
	assert.False(t, result.PumpRunning)

	assert.ErrorIs(t, h.Supervisor.SetLevel(context.Background(), 0.5), ErrNotRunning)
	assert.Equal(t, 0.0, h.device.Current())
}

func TestRecover(t *testing.T) {
	h := newHarness(t, 100, 0)
	h.store.Update(func(s *state.Snapshot) error {
		s.PumpTaskEndTime = state.TimePtr(time.Now().Add(time.Minute))
		s.PumpTaskMode = state.PumpModeTimed
		return nil
	})

	h.Recover(context.Background())

	assert.Equal(t, []float64{0}, h.device.Levels())
	snap := h.snapshot()
	assert.Nil(t, snap.PumpTaskEndTime)
	assert.Empty(t, snap.PumpTaskMode)

	h.Recover(context.Background())
	assert.Len(t, h.device.Levels(), 1, "nothing to recover the second time")
}

func TestShutdown(t *testing.T) {
	h := newHarness(t, 100, 0)

	result, err := h.StartTimed(context.Background(), 30)
	require.NoError(t, err)

	h.clock.Advance(3 * time.Second)
	h.Shutdown()

	assert.False(t, h.Running())
	assert.Equal(t, 0.0, h.device.Current())
	assert.Equal(t, 97, h.snapshot().SessionTimeRemaining)

	outcome, ok := h.recorder.outcome(result.JobID)
	require.True(t, ok)
	assert.Equal(t, jobs.JOBRESULT_CANCELLED, outcome.Result)

	_, err = h.StartTimed(context.Background(), 10)
	assert.ErrorIs(t, err, ErrShutdown)
}
