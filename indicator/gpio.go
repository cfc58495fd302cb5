package indicator

import (
	"fmt"

	"github.com/hjkoskel/govattu"
)

// GPIO implements Indicator using discrete GPIO LED pins.
type GPIO struct {
	hw     govattu.Vattu
	okPin  *uint8
	minPin *uint8
	maxPin *uint8
}

// NewGPIO creates a new GPIO-based indicator.
func NewGPIO(okPin, minPin, maxPin *uint8) (*GPIO, error) {
	hw, err := govattu.Open()
	if err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	g := &GPIO{
		hw:     hw,
		okPin:  okPin,
		minPin: minPin,
		maxPin: maxPin,
	}

	for _, pin := range g.pins() {
		hw.PinMode(*pin, govattu.ALToutput)
		hw.PinClear(*pin)
	}
	return g, nil
}

// InRange implements Indicator.InRange.
func (g *GPIO) InRange() {
	g.only(g.okPin)
}

// MinReached implements Indicator.MinReached.
func (g *GPIO) MinReached() {
	g.only(g.minPin)
}

// MaxReached implements Indicator.MaxReached.
func (g *GPIO) MaxReached() {
	g.only(g.maxPin)
}

// ConnectionLost implements Indicator.ConnectionLost.
func (g *GPIO) ConnectionLost() {
	g.allOff()
	// Both limit LEDs together
	if g.minPin != nil {
		g.hw.PinSet(*g.minPin)
	}
	if g.maxPin != nil {
		g.hw.PinSet(*g.maxPin)
	}
}

// Shutdown implements Indicator.Shutdown.
func (g *GPIO) Shutdown() {
	g.allOff()
}

// Release implements Indicator.Release.
func (g *GPIO) Release() error {
	g.allOff()
	return g.hw.Close()
}

func (g *GPIO) only(pin *uint8) {
	g.allOff()
	if pin != nil {
		g.hw.PinSet(*pin)
	}
}

func (g *GPIO) allOff() {
	for _, pin := range g.pins() {
		g.hw.PinClear(*pin)
	}
}

func (g *GPIO) pins() []*uint8 {
	var pins []*uint8
	for _, p := range []*uint8{g.okPin, g.minPin, g.maxPin} {
		if p != nil {
			pins = append(pins, p)
		}
	}
	return pins
}
