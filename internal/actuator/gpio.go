package actuator

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/stianeikeland/go-rpio"
)

// NewGPIOActuator drives a relay wired to a local GPIO pin. The relay is
// either on or off, so any level above zero switches it on.
func NewGPIOActuator(device DeviceConfig) *GPIOActuator {
	return &GPIOActuator{device: device}
}

func (g *GPIOActuator) SetLevel(ctx context.Context, level float64) error {
	if !validLevel(level) {
		return ErrInvalidLevel
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if level > 0 {
		return g.device.TurnOn()
	}

	return g.device.TurnOff()
}

func (g *GPIOActuator) Level(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	on, err := g.device.IsOn()
	if err != nil {
		return Reading{}, err
	}

	if on {
		return Reading{Known: true, Level: 1}, nil
	}

	return Reading{Known: true, Level: 0}, nil
}

func (g *GPIOActuator) Ping(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := rpio.Open(); err != nil {
		return "", err
	}
	defer rpio.Close()

	return "polo", nil
}

func (g *GPIOActuator) Restart(ctx context.Context) error {
	return ErrNotSupported
}

func (device *DeviceConfig) IsOn() (bool, error) {
	slog.Debug("Device.IsOn", "name", device.Name, "address", device.Address)
	pin, err := device.openPin()
	if err != nil {
		return false, err
	}
	defer rpio.Close()

	var pinOnValue rpio.State = rpio.High
	if device.NormallyOn {
		pinOnValue = rpio.Low
	}

	return pin.Read() == pinOnValue, nil
}

func (device *DeviceConfig) TurnOn() error {
	slog.Debug("Device.TurnOn", "name", device.Name)
	pin, err := device.openPin()
	if err != nil {
		return err
	}
	defer rpio.Close()

	pin.Output()

	// if the device is normally on, that means the pin is low when it is on
	if device.NormallyOn {
		pin.Low()
	} else {
		pin.High()
	}

	return nil
}

func (device *DeviceConfig) TurnOff() error {
	slog.Debug("Device.TurnOff", "name", device.Name)
	pin, err := device.openPin()
	if err != nil {
		return err
	}
	defer rpio.Close()

	pin.Output()

	// if the device is normally on, that means the pin is high when it is off
	if device.NormallyOn {
		pin.High()
	} else {
		pin.Low()
	}

	return nil
}

func (device *DeviceConfig) openPin() (rpio.Pin, error) {
	pinNumber, err := strconv.Atoi(device.Address)
	if err != nil {
		return 0, err
	}

	if err := rpio.Open(); err != nil {
		return 0, err
	}

	return rpio.Pin(pinNumber), nil
}
