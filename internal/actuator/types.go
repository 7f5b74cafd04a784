package actuator

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	DRIVER_HTTP string = "http"
	DRIVER_GPIO string = "gpio"
	DRIVER_MOCK string = "mock"

	DefaultTimeout          = 5 * time.Second
	DefaultRestartTimeout   = 10 * time.Second
	DefaultReconnectBackoff = 15 * time.Second

	// MaxResponseSize bounds how much of a device reply is read.
	MaxResponseSize = 4 << 10
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status from device")
	ErrNotSupported     = errors.New("operation not supported by this actuator")
	ErrInvalidLevel     = errors.New("actuation level must be between 0.0 and 1.0")
	ErrResponseTooLarge = errors.New("device response is too large")
)

type (
	// Reading is the result of asking the device for its level. Known is false
	// when the device answered with something that could not be interpreted.
	Reading struct {
		Known bool
		Level float64
	}

	// Actuator is the remote pump. Every call is bounded by a timeout and
	// failures come back as errors, never panics.
	Actuator interface {
		SetLevel(ctx context.Context, level float64) error
		Level(ctx context.Context) (Reading, error)
		Ping(ctx context.Context) (string, error)
		Restart(ctx context.Context) error
	}

	Config struct {
		Driver         string        `json:"driver"`
		BaseURL        string        `json:"base_url"`
		Timeout        time.Duration `json:"timeout"`
		PumpDevice     DeviceConfig  `json:"pump_device"`
		UseFeed        bool          `json:"use_feed"`
		ReconnectDelay time.Duration `json:"reconnect_delay"`
	}

	DeviceConfig struct {
		Address    string `json:"address"`
		Name       string `json:"name"`
		NormallyOn bool   `json:"normally_on,omitempty"`
	}

	HTTPActuator struct {
		baseURL        string
		timeout        time.Duration
		restartTimeout time.Duration
		client         *http.Client
	}

	GPIOActuator struct {
		device DeviceConfig
	}

	MockActuator struct {
		sync.Mutex
		level  float64
		levels []float64
		err    error
		down   bool
	}

	// Feed follows the device's push channel and keeps the last reported level.
	Feed struct {
		url     string
		backoff time.Duration

		// guards conn, reading and ready
		mu      sync.Mutex
		conn    *websocket.Conn
		reading Reading
		updated time.Time
		ready   chan struct{}
	}
)

func (r Reading) IsOn() bool {
	return r.Known && r.Level > 0
}
