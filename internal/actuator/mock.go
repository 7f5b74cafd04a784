package actuator

import (
	"context"
	"errors"
	"log/slog"
)

var ErrMockDeviceDown = errors.New("mock device is unreachable")

// NewMockActuator returns an in-memory device used with --use_mock_actuator
// and by tests.
func NewMockActuator() *MockActuator {
	return &MockActuator{}
}

func (m *MockActuator) SetLevel(ctx context.Context, level float64) error {
	slog.Debug(">>MockActuator.SetLevel", "level", level)
	defer slog.Debug("<<MockActuator.SetLevel")

	if !validLevel(level) {
		return ErrInvalidLevel
	}

	m.Lock()
	defer m.Unlock()

	if err := m.failure(); err != nil {
		return err
	}

	m.level = level
	m.levels = append(m.levels, level)

	return nil
}

func (m *MockActuator) Level(ctx context.Context) (Reading, error) {
	m.Lock()
	defer m.Unlock()

	if err := m.failure(); err != nil {
		return Reading{}, err
	}

	return Reading{Known: true, Level: m.level}, nil
}

func (m *MockActuator) Ping(ctx context.Context) (string, error) {
	m.Lock()
	defer m.Unlock()

	if m.down {
		return "", ErrMockDeviceDown
	}

	return "polo", nil
}

func (m *MockActuator) Restart(ctx context.Context) error {
	m.Lock()
	defer m.Unlock()

	return m.failure()
}

// SetError makes every following command fail with err until cleared with nil.
func (m *MockActuator) SetError(err error) {
	m.Lock()
	defer m.Unlock()

	m.err = err
}

// SetDown makes the device unreachable, including for Ping.
func (m *MockActuator) SetDown(down bool) {
	m.Lock()
	defer m.Unlock()

	m.down = down
}

// Current returns the last level the device accepted.
func (m *MockActuator) Current() float64 {
	m.Lock()
	defer m.Unlock()

	return m.level
}

// Levels returns every level the device accepted, in order.
func (m *MockActuator) Levels() []float64 {
	m.Lock()
	defer m.Unlock()

	levels := make([]float64, len(m.levels))
	copy(levels, m.levels)

	return levels
}

func (m *MockActuator) failure() error {
	if m.down {
		return ErrMockDeviceDown
	}

	return m.err
}
