// Package encoder decodes a two channel quadrature rotary encoder.
//
// Each phase pin has an edge handler that compares the live levels of
// both pins and moves a shared counter by one. The counter is only ever
// touched through sync/atomic, so handlers running concurrently on
// different pins, and main line calls such as Reset, never lose updates.
package encoder

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
)

const (
	DefaultScale = 4
	DefaultMin   = 1
	DefaultMax   = 99
)

// Direction is the most recently decoded direction of rotation.
type Direction bool

const (
	Backward Direction = false
	Forward  Direction = true
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// Handlers holds callbacks for ClampRead limit events.
// They run on the goroutine that called ClampRead, never from an edge handler.
type Handlers struct {
	OnMinReached func(position int64) // Called with the out of range position
	OnMaxReached func(position int64)
}

// Encoder tracks the position of a quadrature encoder.
type Encoder struct {
	pinA      Pin
	pinB      Pin
	regA      io.Closer
	regB      io.Closer
	reverse   bool
	scale     int64
	pos       int64 // raw ticks, atomic
	forward   atomic.Bool
	armed     atomic.Bool
	handlers  Handlers
	logger    *log.Logger
	closeOnce sync.Once
	closeErr  error
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithReverse flips the decoded direction.
func WithReverse(reverse bool) Option {
	return func(e *Encoder) { e.reverse = reverse }
}

// WithScale sets the number of raw ticks per logical click.
func WithScale(scale int) Option {
	return func(e *Encoder) { e.scale = int64(scale) }
}

// WithHandlers installs the limit event callbacks.
func WithHandlers(h Handlers) Option {
	return func(e *Encoder) { e.handlers = h }
}

// WithLogger sets the logger used for degraded mode reports.
func WithLogger(l *log.Logger) Option {
	return func(e *Encoder) {
		if l != nil {
			e.logger = l
		}
	}
}

// New arms both-edge handlers on pinA and pinB and returns an encoder
// whose counter starts at zero. Either both pins end up armed or neither.
func New(pinA, pinB Pin, opts ...Option) (*Encoder, error) {
	if pinA == nil || pinB == nil {
		return nil, ErrNilPin
	}

	e := &Encoder{
		pinA:   pinA,
		pinB:   pinB,
		scale:  DefaultScale,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.scale < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidScale, e.scale)
	}

	var err error
	e.regA, err = e.register("A", pinA, e.edgeA)
	if err != nil {
		return nil, err
	}
	e.regB, err = e.register("B", pinB, e.edgeB)
	if err != nil {
		e.regA.Close()
		return nil, err
	}

	// Edges seen before this point are dropped rather than applied to a
	// half-built encoder.
	e.armed.Store(true)
	return e, nil
}

func (e *Encoder) register(name string, p Pin, handler func()) (io.Closer, error) {
	reg, err := p.Watch(EdgeBoth, PriorityHard, handler)
	if errors.Is(err, ErrPriorityUnsupported) {
		e.logger.Printf("encoder: pin %s: %v, falling back to %s priority", name, err, PrioritySoft)
		reg, err = p.Watch(EdgeBoth, PrioritySoft, handler)
	}
	if err != nil {
		return nil, &RegistrationError{Pin: name, Err: err}
	}
	return reg, nil
}

func (e *Encoder) edgeA() {
	if !e.armed.Load() {
		return
	}
	e.step((e.pinA.Level() != e.pinB.Level()) != e.reverse)
}

// B sees the opposite phase ordering for the same rotation.
func (e *Encoder) edgeB() {
	if !e.armed.Load() {
		return
	}
	e.step((e.pinA.Level() == e.pinB.Level()) != e.reverse)
}

func (e *Encoder) step(forward bool) {
	e.forward.Store(forward)
	if forward {
		atomic.AddInt64(&e.pos, 1)
	} else {
		atomic.AddInt64(&e.pos, -1)
	}
}

// Position returns the raw count divided by the scale, rounding toward
// negative infinity.
func (e *Encoder) Position() int64 {
	return floorDiv(atomic.LoadInt64(&e.pos), e.scale)
}

// SetPosition stores v clicks and returns the position just written.
func (e *Encoder) SetPosition(v int64) int64 {
	raw := v * e.scale
	atomic.StoreInt64(&e.pos, raw)
	return floorDiv(raw, e.scale)
}

// Value returns the raw tick count.
func (e *Encoder) Value() int64 {
	return atomic.LoadInt64(&e.pos)
}

// SetValue stores v raw ticks, bypassing the scale.
func (e *Encoder) SetValue(v int64) int64 {
	atomic.StoreInt64(&e.pos, v)
	return v
}

// Reset zeroes the counter.
func (e *Encoder) Reset() {
	atomic.StoreInt64(&e.pos, 0)
}

// Direction reports the direction decoded on the most recent edge.
func (e *Encoder) Direction() Direction {
	return Direction(e.forward.Load())
}

func (e *Encoder) Scale() int64 {
	return e.scale
}

func (e *Encoder) Reversed() bool {
	return e.reverse
}

// ClampRead returns the position limited to [min, max].
//
// An out of range read does not pin the counter at the bound: a position
// below min returns min and moves the counter to max, and a position above
// max returns max and moves the counter to min. With min == max successive
// out of range reads alternate between the two cases.
func (e *Encoder) ClampRead(min, max int64) (int64, error) {
	if min > max {
		return 0, fmt.Errorf("%w: %d > %d", ErrInvalidBounds, min, max)
	}

	pos := e.Position()
	switch {
	case pos < min:
		e.SetPosition(max)
		if e.handlers.OnMinReached != nil {
			e.handlers.OnMinReached(pos)
		}
		return min, nil
	case pos > max:
		e.SetPosition(min)
		if e.handlers.OnMaxReached != nil {
			e.handlers.OnMaxReached(pos)
		}
		return max, nil
	}
	return pos, nil
}

// Close disarms both edge handlers. Counter accessors keep working, but
// further edges have no effect.
func (e *Encoder) Close() error {
	e.closeOnce.Do(func() {
		e.armed.Store(false)
		e.closeErr = errors.Join(e.regA.Close(), e.regB.Close())
	})
	return e.closeErr
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
