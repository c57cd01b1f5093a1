package indicator

import (
	"github.com/cjeanneret/BracketGo/internal/hw/gpio"
)

// BusyLight is an LED (or relay) wired to a GPIO pin, lit while the
// camera is exposing or transferring a file.
type BusyLight struct {
	gpio      gpio.Driver
	pin       int
	activeLow bool
}

// NewBusyLight configures pin as an output and switches the light off.
func NewBusyLight(g gpio.Driver, pin int, activeLow bool) (*BusyLight, error) {
	b := &BusyLight{gpio: g, pin: pin, activeLow: activeLow}
	if err := g.SetupOutput(pin); err != nil {
		return nil, err
	}
	if err := b.Off(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *BusyLight) On() error {
	return b.gpio.WritePin(b.pin, b.level(true))
}

func (b *BusyLight) Off() error {
	return b.gpio.WritePin(b.pin, b.level(false))
}

func (b *BusyLight) level(on bool) gpio.Level {
	if b.activeLow {
		return gpio.Level(!on)
	}
	return gpio.Level(on)
}
