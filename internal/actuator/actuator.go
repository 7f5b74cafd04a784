package actuator

import (
	"fmt"
	"log/slog"
	"strings"
)

// NewActuator builds the actuator selected by cfg.Driver.
func NewActuator(cfg Config) (Actuator, error) {
	slog.Debug(">>NewActuator", "driver", cfg.Driver)
	defer slog.Debug("<<NewActuator")

	switch strings.ToLower(cfg.Driver) {
	case DRIVER_HTTP, "":
		if len(cfg.BaseURL) == 0 {
			return nil, fmt.Errorf("actuator driver %q requires a base url", DRIVER_HTTP)
		}
		return NewHTTPActuator(cfg.BaseURL, cfg.Timeout), nil

	case DRIVER_GPIO:
		if len(cfg.PumpDevice.Address) == 0 {
			return nil, fmt.Errorf("actuator driver %q requires a pump device address", DRIVER_GPIO)
		}
		return NewGPIOActuator(cfg.PumpDevice), nil

	case DRIVER_MOCK:
		return NewMockActuator(), nil
	}

	return nil, fmt.Errorf("unknown actuator driver %q", cfg.Driver)
}

func validLevel(level float64) bool {
	return level >= 0 && level <= 1
}
