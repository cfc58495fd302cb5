// Package sim provides software GPIO inputs for driving an encoder
// without hardware.
package sim

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"quadenc/encoder"
)

var ErrBusy = errors.New("sim: pin already watched")

// Pin is a simulated digital input with a single edge watch slot.
type Pin struct {
	name     string
	level    atomic.Bool
	softOnly bool

	// Held for reading by Set while a handler runs, so that closing a
	// watch waits for in-flight callbacks.
	mu      sync.RWMutex
	edge    encoder.Edge
	handler func()
}

// PinOption configures a simulated pin.
type PinOption func(*Pin)

// WithLevel sets the initial level.
func WithLevel(high bool) PinOption {
	return func(p *Pin) { p.level.Store(high) }
}

// SoftOnly makes hard priority watches fail, as on a platform without
// interrupt context delivery.
func SoftOnly() PinOption {
	return func(p *Pin) { p.softOnly = true }
}

// NewPin creates a simulated pin, low unless configured otherwise.
func NewPin(name string, opts ...PinOption) *Pin {
	p := &Pin{name: name}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pin) String() string {
	return p.name
}

// Level implements encoder.Pin.
func (p *Pin) Level() bool {
	return p.level.Load()
}

// Watch implements encoder.Pin.
func (p *Pin) Watch(edge encoder.Edge, prio encoder.Priority, handler func()) (io.Closer, error) {
	if prio == encoder.PriorityHard && p.softOnly {
		return nil, fmt.Errorf("%s: %w", p.name, encoder.ErrPriorityUnsupported)
	}
	if handler == nil {
		return nil, fmt.Errorf("%s: nil handler", p.name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handler != nil {
		return nil, fmt.Errorf("%s: %w", p.name, ErrBusy)
	}
	p.edge = edge
	p.handler = handler
	return &watch{pin: p}, nil
}

// Watched reports whether a handler is currently armed.
func (p *Pin) Watched() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.handler != nil
}

// Set drives the pin to level and runs the armed handler if the
// transition matches the watched edge. It returns once the handler has.
func (p *Pin) Set(high bool) {
	if p.level.Swap(high) == high {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handler == nil {
		return
	}
	switch p.edge {
	case encoder.EdgeBoth:
	case encoder.EdgeRising:
		if !high {
			return
		}
	case encoder.EdgeFalling:
		if high {
			return
		}
	default:
		return
	}
	p.handler()
}

// Toggle inverts the level.
func (p *Pin) Toggle() {
	p.Set(!p.Level())
}

type watch struct {
	pin  *Pin
	once sync.Once
}

func (w *watch) Close() error {
	w.once.Do(func() {
		w.pin.mu.Lock()
		w.pin.handler = nil
		w.pin.mu.Unlock()
	})
	return nil
}
