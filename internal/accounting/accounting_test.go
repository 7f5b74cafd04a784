package accounting

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KyleBrandon/lbis-server/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRefresher struct {
	count atomic.Int32
}

func (m *mockRefresher) RequestStatusUpdate() {
	m.count.Add(1)
}

type mockLivePump struct {
	running bool
	err     error
	levels  []float64
}

func (m *mockLivePump) Running() bool {
	return m.running
}

func (m *mockLivePump) SetLevel(ctx context.Context, level float64) error {
	if m.err != nil {
		return m.err
	}
	m.levels = append(m.levels, level)
	return nil
}

func newTestEngine(t *testing.T, seed func(*state.Snapshot)) (*Engine, *state.Store, *mockRefresher) {
	t.Helper()

	store := state.NewStore(filepath.Join(t.TempDir(), "session.json"), 1800)
	require.NoError(t, store.Load())
	if seed != nil {
		_, err := store.Update(func(s *state.Snapshot) error {
			seed(s)
			return nil
		})
		require.NoError(t, err)
	}

	refresher := &mockRefresher{}
	engine := NewEngine(store, Limits{MaxSessionExtension: 3600, MaxSessionTime: 1800, MaxBankedTime: 600}, refresher)

	return engine, store, refresher
}

func reload(t *testing.T, store *state.Store) state.Snapshot {
	t.Helper()

	fresh := state.NewStore(store.Path(), 1800)
	require.NoError(t, fresh.Load())
	return fresh.Snapshot()
}

func TestAddSessionTime(t *testing.T) {
	t.Run("should reject non positive minutes", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, nil)
		_, err := engine.AddSessionTime(0, 7200)
		assert.ErrorIs(t, err, ErrNotPositive)
		_, err = engine.AddSessionTime(-3, 7200)
		assert.ErrorIs(t, err, ErrNotPositive)
	})

	t.Run("should reject more than the extension limit", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, nil)
		_, err := engine.AddSessionTime(61, 7200)
		assert.ErrorIs(t, err, ErrExceedsExtension)
		assert.Equal(t, 0, engine.Snapshot().SessionTimeRemaining)
	})

	t.Run("should add and persist", func(t *testing.T) {
		engine, store, refresher := newTestEngine(t, func(s *state.Snapshot) { s.SessionTimeRemaining = 100 })
		change, err := engine.AddSessionTime(5, 7200)
		require.NoError(t, err)
		assert.Equal(t, Change{Amount: 300, Before: 100, After: 400}, change)
		assert.Equal(t, 400, reload(t, store).SessionTimeRemaining)
		assert.Equal(t, int32(1), refresher.count.Load())
	})

	t.Run("should clamp to the maximum", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, func(s *state.Snapshot) { s.SessionTimeRemaining = 7000 })
		change, err := engine.AddSessionTime(10, 7200)
		require.NoError(t, err)
		assert.Equal(t, 200, change.Amount)
		assert.Equal(t, 7200, engine.Snapshot().SessionTimeRemaining)
	})

	t.Run("should reject when already full", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, func(s *state.Snapshot) { s.SessionTimeRemaining = 7200 })
		_, err := engine.AddSessionTime(1, 7200)
		assert.ErrorIs(t, err, ErrSessionFull)
	})
}

func TestSessionNeverExceedsBounds(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	const maximum = 2000

	for i, minutes := range []int{7, 13, 1, 25, 60, 3, 9} {
		engine.AddSessionTime(minutes, maximum)
		assert.LessOrEqual(t, engine.Snapshot().SessionTimeRemaining, maximum, "add #%d", i)
	}

	for i, minutes := range []int{4, 50, 1, 100} {
		_, err := engine.RemoveSessionTime(minutes)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, engine.Snapshot().SessionTimeRemaining, 0, "remove #%d", i)
	}

	assert.Equal(t, 0, engine.Snapshot().SessionTimeRemaining)
}

func TestOverflowingMinutesAreRejected(t *testing.T) {
	// times 60 this wraps negative
	const wrapping = math.MaxInt/60 + 1

	engine, store, _ := newTestEngine(t, func(s *state.Snapshot) { s.SessionTimeRemaining = 600 })

	for _, minutes := range []int{wrapping, math.MaxInt} {
		_, err := engine.SetSessionTime(minutes)
		assert.ErrorIs(t, err, ErrExceedsMaximum)

		_, err = engine.AddSessionTime(minutes, 14400)
		assert.ErrorIs(t, err, ErrExceedsExtension)
	}

	assert.Equal(t, 600, reload(t, store).SessionTimeRemaining)

	change, err := engine.RemoveSessionTime(wrapping)
	require.NoError(t, err)
	assert.Equal(t, 600, change.Amount)
	assert.Equal(t, 0, engine.Snapshot().SessionTimeRemaining)
}

func TestLargeBankAmountsStayInBounds(t *testing.T) {
	engine, _, _ := newTestEngine(t, func(s *state.Snapshot) { s.BankedTime = 100 })

	change, err := engine.BankAdd(math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, 500, change.Amount)
	assert.Equal(t, 600, engine.Snapshot().BankedTime)

	_, err = engine.BankRemove(math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, 0, engine.DepositBank(math.MaxInt).Before)
	assert.Equal(t, 600, engine.Snapshot().BankedTime)
}

func TestRemoveSessionTime(t *testing.T) {
	engine, _, _ := newTestEngine(t, func(s *state.Snapshot) { s.SessionTimeRemaining = 90 })

	_, err := engine.RemoveSessionTime(0)
	assert.ErrorIs(t, err, ErrNotPositive)

	change, err := engine.RemoveSessionTime(5)
	require.NoError(t, err)
	assert.Equal(t, 90, change.Amount)
	assert.Equal(t, 0, change.After)
}

func TestSetAndResetSessionTime(t *testing.T) {
	engine, store, _ := newTestEngine(t, func(s *state.Snapshot) {
		s.SessionTimeRemaining = 5
		s.SessionPumpStart = state.TimePtr(time.Now())
	})

	_, err := engine.SetSessionTime(-1)
	assert.ErrorIs(t, err, ErrNegative)

	_, err = engine.SetSessionTime(31)
	assert.ErrorIs(t, err, ErrExceedsMaximum)

	change, err := engine.SetSessionTime(20)
	require.NoError(t, err)
	assert.Equal(t, 1200, change.After)

	snap := reload(t, store)
	assert.Equal(t, 1200, snap.SessionTimeRemaining)
	assert.Equal(t, 1200, snap.DefaultSessionTime)
	assert.Nil(t, snap.SessionPumpStart)

	_, err = engine.RemoveSessionTime(15)
	require.NoError(t, err)

	change, err = engine.ResetSessionTime()
	require.NoError(t, err)
	assert.Equal(t, 300, change.Before)
	assert.Equal(t, 1200, change.After)

	_, err = engine.SetSessionTime(0)
	require.NoError(t, err)
	assert.Equal(t, 0, engine.Snapshot().SessionTimeRemaining)
}

func TestBankOperations(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)

	_, err := engine.BankAdd(0)
	assert.ErrorIs(t, err, ErrNotPositive)

	change, err := engine.BankAdd(500)
	require.NoError(t, err)
	assert.Equal(t, 500, change.Amount)

	change, err = engine.BankAdd(500)
	require.NoError(t, err)
	assert.Equal(t, 100, change.Amount, "bank is capped at 600")
	assert.Equal(t, 600, reload(t, store).BankedTime)

	_, err = engine.BankAdd(1)
	assert.ErrorIs(t, err, ErrBankFull)

	change, err = engine.BankRemove(1000)
	require.NoError(t, err, "overdraw is not an error")
	assert.Equal(t, 600, change.Amount)
	assert.Equal(t, 0, change.After)

	_, err = engine.BankSet(601)
	assert.ErrorIs(t, err, ErrExceedsMaximum)
	_, err = engine.BankSet(-1)
	assert.ErrorIs(t, err, ErrNegative)

	_, err = engine.BankSet(250)
	require.NoError(t, err)
	assert.Equal(t, 250, reload(t, store).BankedTime)

	change, err = engine.BankReset()
	require.NoError(t, err)
	assert.Equal(t, 250, change.Before)
	assert.Equal(t, 0, reload(t, store).BankedTime)
}

func TestSetIntensity(t *testing.T) {
	t.Run("should reject out of range", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, nil)
		_, err := engine.SetIntensity(context.Background(), 1.01)
		assert.ErrorIs(t, err, ErrIntensityRange)
		_, err = engine.SetIntensity(context.Background(), -0.1)
		assert.ErrorIs(t, err, ErrIntensityRange)
		assert.Equal(t, 1.0, engine.Snapshot().PumpIntensity)
	})

	t.Run("should only store when the pump is idle", func(t *testing.T) {
		engine, store, _ := newTestEngine(t, nil)
		pump := &mockLivePump{}
		engine.AttachPump(pump)

		result, err := engine.SetIntensity(context.Background(), 0.5)
		require.NoError(t, err)
		assert.False(t, result.PumpRunning)
		assert.Empty(t, pump.levels)
		assert.Equal(t, 0.5, reload(t, store).PumpIntensity)
	})

	t.Run("should push to a running pump", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, nil)
		pump := &mockLivePump{running: true}
		engine.AttachPump(pump)

		result, err := engine.SetIntensity(context.Background(), 0.3)
		require.NoError(t, err)
		assert.True(t, result.Applied)
		assert.Equal(t, []float64{0.3}, pump.levels)
	})

	t.Run("should keep the default when the push fails", func(t *testing.T) {
		engine, store, _ := newTestEngine(t, nil)
		pump := &mockLivePump{running: true, err: errors.New("timeout")}
		engine.AttachPump(pump)

		result, err := engine.SetIntensity(context.Background(), 0.7)
		require.NoError(t, err)
		assert.False(t, result.Applied)
		assert.ErrorIs(t, result.ApplyErr, ErrLiveIntensity)
		assert.Equal(t, 0.7, reload(t, store).PumpIntensity)
	})

	t.Run("should treat a run that just ended as idle", func(t *testing.T) {
		engine, store, _ := newTestEngine(t, nil)
		pump := &mockLivePump{running: true, err: ErrPumpNotRunning}
		engine.AttachPump(pump)

		result, err := engine.SetIntensity(context.Background(), 0.2)
		require.NoError(t, err)
		assert.False(t, result.PumpRunning)
		assert.False(t, result.Applied)
		assert.NoError(t, result.ApplyErr)
		assert.Equal(t, 0.2, reload(t, store).PumpIntensity)
	})
}

func TestSupervisorHelpers(t *testing.T) {
	engine, _, _ := newTestEngine(t, func(s *state.Snapshot) {
		s.SessionTimeRemaining = 30
		s.BankedTime = 590
	})

	assert.Equal(t, 30, engine.DebitSession(45).Amount)
	assert.Equal(t, 0, engine.Snapshot().SessionTimeRemaining)

	assert.Equal(t, 10, engine.DepositBank(25).Amount)
	assert.Equal(t, 0, engine.DepositBank(25).Amount)
	assert.Equal(t, 600, engine.Snapshot().BankedTime)

	_, err := engine.SetSessionTime(1)
	require.NoError(t, err)
	assert.Equal(t, 60, engine.ConsumeBanked(100))
	snap := engine.Snapshot()
	assert.Equal(t, 0, snap.SessionTimeRemaining)
	assert.Equal(t, 540, snap.BankedTime)
	assert.Equal(t, 0, engine.ConsumeBanked(5))
}
