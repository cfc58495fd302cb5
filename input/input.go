// Package input opens the pair of phase pins an encoder is wired to.
package input

import (
	"errors"
	"fmt"

	"quadenc/encoder"
	"quadenc/sim"
)

var (
	ErrNotSupported = errors.New("input type not supported on this platform")
	ErrBusy         = errors.New("pin already watched")
)

// Config selects and configures the pin backend.
type Config struct {
	Type     string `yaml:"type"`      // "gpiocdev", "gpio", "sysfs", "machine", "sim"
	Chip     string `yaml:"chip"`      // gpiocdev only
	PinA     int    `yaml:"pin_a"`     // line offset or BCM/MCU pin number
	PinB     int    `yaml:"pin_b"`     // must differ from pin_a
	PullUp   *bool  `yaml:"pull_up"`   // nil = enabled
	SoftOnly bool   `yaml:"soft_only"` // sim only: refuse hard priority watches
}

// Pair holds the two phase inputs of one encoder.
type Pair struct {
	A encoder.Pin
	B encoder.Pin

	// Sim is set for the "sim" type and drives both pins.
	Sim *sim.Quadrature

	release func() error
}

// Close releases the underlying hardware. The encoder using the pins must
// be closed first.
func (p *Pair) Close() error {
	if p.release == nil {
		return nil
	}
	err := p.release()
	p.release = nil
	return err
}

// New opens the pins described by cfg.
func New(cfg Config) (*Pair, error) {
	if cfg.PinA == cfg.PinB && cfg.Type != "sim" {
		return nil, fmt.Errorf("pin_a and pin_b are both %d", cfg.PinA)
	}
	pullUp := cfg.PullUp == nil || *cfg.PullUp

	switch cfg.Type {
	case "gpiocdev", "":
		if cfg.Chip == "" {
			cfg.Chip = "gpiochip0"
		}
		return openCdev(cfg.Chip, cfg.PinA, cfg.PinB, pullUp)
	case "gpio":
		return openMem(cfg.PinA, cfg.PinB, pullUp)
	case "sysfs":
		return openSysfs(cfg.PinA, cfg.PinB, pullUp)
	case "machine":
		return openMachine(cfg.PinA, cfg.PinB, pullUp)
	case "sim":
		var opts []sim.PinOption
		if cfg.SoftOnly {
			opts = append(opts, sim.SoftOnly())
		}
		// Pulled up inputs idle high.
		if pullUp {
			opts = append(opts, sim.WithLevel(true))
		}
		a := sim.NewPin("A", opts...)
		b := sim.NewPin("B", opts...)
		return &Pair{A: a, B: b, Sim: sim.NewQuadrature(a, b)}, nil
	default:
		return nil, fmt.Errorf("unknown input type %q", cfg.Type)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
