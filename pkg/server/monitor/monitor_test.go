package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KyleBrandon/lbis-server/internal/actuator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProber struct {
	down atomic.Bool
	hits atomic.Int32
}

func (m *mockProber) Ping(ctx context.Context) (string, error) {
	m.hits.Add(1)
	if m.down.Load() {
		return "", errors.New("connection refused")
	}
	return "polo", nil
}

type mockNotifier struct {
	sync.Mutex
	messages []string
}

func (m *mockNotifier) Notify(message string) {
	m.Lock()
	defer m.Unlock()

	m.messages = append(m.messages, message)
}

func (m *mockNotifier) sent() []string {
	m.Lock()
	defer m.Unlock()

	return append([]string(nil), m.messages...)
}

type mockAccruer struct {
	ticks atomic.Int32
	empty atomic.Bool
}

func (m *mockAccruer) AccrueSecond() bool {
	m.ticks.Add(1)
	return m.empty.Load()
}

type mockRefresher struct {
	count atomic.Int32
}

func (m *mockRefresher) RequestStatusUpdate() {
	m.count.Add(1)
}

func TestLivenessTransitionsNotifyOnce(t *testing.T) {
	prober := &mockProber{}
	link := actuator.NewReachability()
	notifier := &mockNotifier{}

	mctx := InitializeMonitorContext(MonitorConfig{
		Prober:        prober,
		Link:          link,
		Notifier:      notifier,
		ProbeInterval: 5 * time.Millisecond,
	})
	defer mctx.CancelAndWait()

	require.Eventually(t, func() bool { return prober.hits.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Empty(t, notifier.sent(), "starting up is not a transition")

	prober.down.Store(true)
	require.Eventually(t, func() bool { return !link.Up() }, time.Second, time.Millisecond)

	hits := prober.hits.Load()
	require.Eventually(t, func() bool { return prober.hits.Load() >= hits+3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{MessageServiceDown}, notifier.sent())

	prober.down.Store(false)
	require.Eventually(t, func() bool { return link.Up() }, time.Second, time.Millisecond)

	hits = prober.hits.Load()
	require.Eventually(t, func() bool { return prober.hits.Load() >= hits+3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{MessageServiceDown, MessageServiceUp}, notifier.sent())
}

type orderCheckingNotifier struct {
	link    *actuator.Reachability
	sawDown atomic.Bool
}

func (o *orderCheckingNotifier) Notify(message string) {
	if message == MessageServiceDown && !o.link.Up() {
		o.sawDown.Store(true)
	}
}

func TestLinkFlagUpdatedBeforeNotify(t *testing.T) {
	prober := &mockProber{}
	prober.down.Store(true)
	link := actuator.NewReachability()
	notifier := &orderCheckingNotifier{link: link}

	mctx := InitializeMonitorContext(MonitorConfig{
		Prober:        prober,
		Link:          link,
		Notifier:      notifier,
		ProbeInterval: 5 * time.Millisecond,
	})
	defer mctx.CancelAndWait()

	require.Eventually(t, notifier.sawDown.Load, time.Second, time.Millisecond)
}

func TestSessionTick(t *testing.T) {
	accruer := &mockAccruer{}
	refresher := &mockRefresher{}

	mctx := InitializeMonitorContext(MonitorConfig{
		Prober:        &mockProber{},
		Link:          actuator.NewReachability(),
		Accruer:       accruer,
		Refresher:     refresher,
		ProbeInterval: time.Hour,
		TickInterval:  2 * time.Millisecond,
	})

	require.Eventually(t, func() bool { return accruer.ticks.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), refresher.count.Load())

	accruer.empty.Store(true)
	require.Eventually(t, func() bool { return refresher.count.Load() > 0 }, time.Second, time.Millisecond)

	mctx.CancelAndWait()

	ticks := accruer.ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, ticks, accruer.ticks.Load(), "no ticks after cancel")
}
