//go:build linux && !baremetal

package input

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"

	"quadenc/encoder"
)

const consumer = "quadenc"

// CdevPin is an input line on a GPIO character device.
type CdevPin struct {
	chip   string
	offset int
	opts   []gpiocdev.LineReqOption

	mu       sync.Mutex
	line     atomic.Pointer[gpiocdev.Line]
	watching bool
}

// NewCdevPin requests offset on chip as an input.
func NewCdevPin(chip string, offset int, pullUp bool) (*CdevPin, error) {
	p := &CdevPin{
		chip:   chip,
		offset: offset,
		opts:   []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithConsumer(consumer)},
	}
	if pullUp {
		p.opts = append(p.opts, gpiocdev.WithPullUp)
	}

	l, err := gpiocdev.RequestLine(chip, offset, p.opts...)
	if err != nil {
		return nil, fmt.Errorf("request %s:%d: %w", chip, offset, err)
	}
	p.line.Store(l)
	return p, nil
}

func (p *CdevPin) String() string {
	return fmt.Sprintf("%s:%d", p.chip, p.offset)
}

// Level implements encoder.Pin. A line that cannot be read reports low.
func (p *CdevPin) Level() bool {
	l := p.line.Load()
	if l == nil {
		return false
	}
	v, err := l.Value()
	return err == nil && v == 1
}

// Watch implements encoder.Pin. Edge events from the kernel are delivered
// on the library's watcher goroutine, so only soft priority is available.
func (p *CdevPin) Watch(edge encoder.Edge, prio encoder.Priority, handler func()) (io.Closer, error) {
	if prio == encoder.PriorityHard {
		return nil, fmt.Errorf("%s: %w", p, encoder.ErrPriorityUnsupported)
	}

	var edgeOpt gpiocdev.LineReqOption
	switch edge {
	case encoder.EdgeRising:
		edgeOpt = gpiocdev.WithRisingEdge
	case encoder.EdgeFalling:
		edgeOpt = gpiocdev.WithFallingEdge
	case encoder.EdgeBoth:
		edgeOpt = gpiocdev.WithBothEdges
	default:
		return nil, fmt.Errorf("%s: unsupported edge %v", p, edge)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watching {
		return nil, fmt.Errorf("%s: %w", p, ErrBusy)
	}

	// Event handlers can only be attached when the line is requested.
	if old := p.line.Swap(nil); old != nil {
		old.Close()
	}
	opts := append([]gpiocdev.LineReqOption{}, p.opts...)
	opts = append(opts, edgeOpt, gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
		handler()
	}))
	l, err := gpiocdev.RequestLine(p.chip, p.offset, opts...)
	if err != nil {
		// Put the plain input back so the pin stays readable.
		if plain, perr := gpiocdev.RequestLine(p.chip, p.offset, p.opts...); perr == nil {
			p.line.Store(plain)
		}
		return nil, fmt.Errorf("watch %s: %w", p, err)
	}
	p.line.Store(l)
	p.watching = true
	return closerFunc(p.unwatch), nil
}

func (p *CdevPin) unwatch() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.watching {
		return nil
	}
	p.watching = false
	if l := p.line.Swap(nil); l != nil {
		return l.Close()
	}
	return nil
}

// Close releases the line.
func (p *CdevPin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watching = false
	if l := p.line.Swap(nil); l != nil {
		return l.Close()
	}
	return nil
}

func openCdev(chip string, pinA, pinB int, pullUp bool) (*Pair, error) {
	a, err := NewCdevPin(chip, pinA, pullUp)
	if err != nil {
		return nil, err
	}
	b, err := NewCdevPin(chip, pinB, pullUp)
	if err != nil {
		a.Close()
		return nil, err
	}
	return &Pair{
		A: a,
		B: b,
		release: func() error {
			return errors.Join(a.Close(), b.Close())
		},
	}, nil
}
