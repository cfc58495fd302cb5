//go:build linux && !baremetal

package input

import (
	"fmt"
	"io"
	"sync"

	"github.com/warthog618/gpio"

	"quadenc/encoder"
)

// MemPin is a Raspberry Pi BCM pin accessed through /dev/gpiomem.
type MemPin struct {
	num int
	pin *gpio.Pin

	mu       sync.Mutex
	watching bool
}

// NewMemPin configures BCM pin num as an input. gpio.Open must have
// succeeded first.
func NewMemPin(num int, pullUp bool) *MemPin {
	pin := gpio.NewPin(num)
	pin.Input()
	if pullUp {
		pin.PullUp()
	} else {
		pin.PullNone()
	}
	return &MemPin{num: num, pin: pin}
}

func (p *MemPin) String() string {
	return fmt.Sprintf("GPIO%d", p.num)
}

// Level implements encoder.Pin.
func (p *MemPin) Level() bool {
	return p.pin.Read() == gpio.High
}

// Watch implements encoder.Pin. Edges are reported from the package's
// epoll goroutine, so hard priority is refused.
func (p *MemPin) Watch(edge encoder.Edge, prio encoder.Priority, handler func()) (io.Closer, error) {
	if prio == encoder.PriorityHard {
		return nil, fmt.Errorf("%s: %w", p, encoder.ErrPriorityUnsupported)
	}

	var e gpio.Edge
	switch edge {
	case encoder.EdgeRising:
		e = gpio.EdgeRising
	case encoder.EdgeFalling:
		e = gpio.EdgeFalling
	case encoder.EdgeBoth:
		e = gpio.EdgeBoth
	default:
		return nil, fmt.Errorf("%s: unsupported edge %v", p, edge)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watching {
		return nil, fmt.Errorf("%s: %w", p, ErrBusy)
	}
	if err := p.pin.Watch(e, func(*gpio.Pin) { handler() }); err != nil {
		return nil, fmt.Errorf("watch %s: %w", p, err)
	}
	p.watching = true
	return closerFunc(p.unwatch), nil
}

func (p *MemPin) unwatch() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watching {
		p.pin.Unwatch()
		p.watching = false
	}
	return nil
}

func openMem(pinA, pinB int, pullUp bool) (*Pair, error) {
	if err := gpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}
	a := NewMemPin(pinA, pullUp)
	b := NewMemPin(pinB, pullUp)
	return &Pair{
		A: a,
		B: b,
		release: func() error {
			a.unwatch()
			b.unwatch()
			return gpio.Close()
		},
	}, nil
}
