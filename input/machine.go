//go:build rp2040

package input

import (
	"fmt"
	"io"
	"machine"
	"runtime/interrupt"

	"quadenc/encoder"
)

// MachinePin is a microcontroller pin with a hardware edge interrupt.
type MachinePin struct {
	pin machine.Pin
}

// NewMachinePin configures pin num as an input.
func NewMachinePin(num int, pullUp bool) *MachinePin {
	p := machine.Pin(num)
	mode := machine.PinInput
	if pullUp {
		mode = machine.PinInputPullup
	}
	p.Configure(machine.PinConfig{Mode: mode})
	return &MachinePin{pin: p}
}

// Level implements encoder.Pin.
func (p *MachinePin) Level() bool {
	return p.pin.Get()
}

// Watch implements encoder.Pin. The callback runs in interrupt context at
// either priority.
func (p *MachinePin) Watch(edge encoder.Edge, prio encoder.Priority, handler func()) (io.Closer, error) {
	var change machine.PinChange
	switch edge {
	case encoder.EdgeRising:
		change = machine.PinRising
	case encoder.EdgeFalling:
		change = machine.PinFalling
	case encoder.EdgeBoth:
		change = machine.PinToggle
	default:
		return nil, fmt.Errorf("pin %d: unsupported edge %v", p.pin, edge)
	}

	state := interrupt.Disable()
	err := p.pin.SetInterrupt(change, func(machine.Pin) { handler() })
	interrupt.Restore(state)
	if err != nil {
		return nil, fmt.Errorf("pin %d: %w", p.pin, err)
	}

	return closerFunc(func() error {
		state := interrupt.Disable()
		defer interrupt.Restore(state)
		return p.pin.SetInterrupt(0, nil)
	}), nil
}

func openMachine(pinA, pinB int, pullUp bool) (*Pair, error) {
	return &Pair{
		A: NewMachinePin(pinA, pullUp),
		B: NewMachinePin(pinB, pullUp),
	}, nil
}
