package gpio

import (
	"fmt"

	"github.com/cjeanneret/BracketGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver drives Raspberry Pi pins through go-rpio.
type RPiDriver struct {
	outputs map[int]rpio.Pin
}

// NewRPiDriver maps the GPIO registers. Needs /dev/gpiomem or root.
func NewRPiDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	return &RPiDriver{outputs: make(map[int]rpio.Pin)}, nil
}

func (r *RPiDriver) SetupOutput(pin int) error {
	debug.GPIO("SetupOutput", pin, nil)
	p := rpio.Pin(pin)
	p.Output()
	r.outputs[pin] = p
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	p, ok := r.outputs[pin]
	if !ok {
		return fmt.Errorf("pin %d not configured as output", pin)
	}
	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

// Close drives every output low, returns them to input and unmaps the registers.
func (r *RPiDriver) Close() error {
	debug.Trace("GPIO close (real driver)")
	for pin, p := range r.outputs {
		debug.Verbose("Releasing pin %d", pin)
		p.Low()
		p.Input()
	}
	return rpio.Close()
}
