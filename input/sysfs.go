//go:build linux && !baremetal

package input

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"quadenc/encoder"
)

// sysfsRoot is the legacy GPIO class directory.
var sysfsRoot = "/sys/class/gpio"

// Poll timeout, bounds how long unwatch waits for the watcher goroutine.
const sysfsPollMS = 100

// SysfsPin is a GPIO input driven through /sys/class/gpio, for kernels
// without the character device.
type SysfsPin struct {
	num      int
	root     string
	value    *os.File
	exported bool

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewSysfsPin exports pin num if needed and configures it as an input.
func NewSysfsPin(num int) (*SysfsPin, error) {
	p := &SysfsPin{num: num, root: sysfsRoot}

	if _, err := os.Stat(p.path("")); errors.Is(err, os.ErrNotExist) {
		if err := writeFile(filepath.Join(p.root, "export"), strconv.Itoa(num)); err != nil {
			return nil, fmt.Errorf("export %s: %w", p, err)
		}
		p.exported = true
	}
	if err := p.write("direction", "in"); err != nil {
		p.unexport()
		return nil, err
	}
	if err := p.write("edge", "none"); err != nil {
		p.unexport()
		return nil, err
	}

	f, err := os.OpenFile(p.path("value"), os.O_RDONLY, 0)
	if err != nil {
		p.unexport()
		return nil, fmt.Errorf("open %s value: %w", p, err)
	}
	p.value = f
	return p, nil
}

func (p *SysfsPin) String() string {
	return fmt.Sprintf("gpio%d", p.num)
}

func (p *SysfsPin) path(name string) string {
	return filepath.Join(p.root, p.String(), name)
}

func (p *SysfsPin) write(name, s string) error {
	if err := writeFile(p.path(name), s); err != nil {
		return fmt.Errorf("%s %s: %w", p, name, err)
	}
	return nil
}

func (p *SysfsPin) unexport() {
	if p.exported {
		writeFile(filepath.Join(p.root, "unexport"), strconv.Itoa(p.num))
		p.exported = false
	}
}

// read returns the current level. Reading also acknowledges a pending edge.
func (p *SysfsPin) read() (bool, error) {
	var buf [1]byte
	if _, err := p.value.ReadAt(buf[:], 0); err != nil {
		return false, err
	}
	switch buf[0] {
	case '0':
		return false, nil
	case '1':
		return true, nil
	}
	return false, fmt.Errorf("%s: unknown value %q", p, buf[0])
}

// Level implements encoder.Pin. It runs inside edge handlers, so read
// errors report low without logging; the watcher reports them.
func (p *SysfsPin) Level() bool {
	high, _ := p.read()
	return high
}

// Watch implements encoder.Pin. Edges are polled from a goroutine, so hard
// priority is refused.
func (p *SysfsPin) Watch(edge encoder.Edge, prio encoder.Priority, handler func()) (io.Closer, error) {
	if prio == encoder.PriorityHard {
		return nil, fmt.Errorf("%s: %w", p, encoder.ErrPriorityUnsupported)
	}

	var s string
	switch edge {
	case encoder.EdgeRising:
		s = "rising"
	case encoder.EdgeFalling:
		s = "falling"
	case encoder.EdgeBoth:
		s = "both"
	default:
		return nil, fmt.Errorf("%s: unsupported edge %v", p, edge)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return nil, fmt.Errorf("%s: %w", p, ErrBusy)
	}
	if err := p.write("edge", s); err != nil {
		return nil, err
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.watch(p.stop, p.done, handler)
	return closerFunc(p.unwatch), nil
}

func (p *SysfsPin) watch(stop, done chan struct{}, handler func()) {
	defer close(done)

	fds := []unix.PollFd{{Fd: int32(p.value.Fd()), Events: unix.POLLPRI | unix.POLLERR}}
	// The value file reports ready until it has been read once.
	p.read()

	for {
		select {
		case <-stop:
			return
		default:
		}

		fds[0].Revents = 0
		n, err := unix.Poll(fds, sysfsPollMS)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			log.Printf("%s: poll: %v", p, err)
			return
		}
		if n == 0 {
			continue
		}
		if _, err := p.read(); err != nil {
			log.Printf("%s: read: %v", p, err)
		}
		handler()
	}
}

func (p *SysfsPin) unwatch() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == nil {
		return nil
	}
	close(p.stop)
	<-p.done
	p.stop, p.done = nil, nil
	return p.write("edge", "none")
}

// Close stops any watch, closes the value file and unexports the pin if
// NewSysfsPin exported it.
func (p *SysfsPin) Close() error {
	err := p.unwatch()
	if cerr := p.value.Close(); err == nil {
		err = cerr
	}
	p.unexport()
	return err
}

func writeFile(path, s string) error {
	return os.WriteFile(path, []byte(s), 0644)
}

func openSysfs(pinA, pinB int, pullUp bool) (*Pair, error) {
	if pullUp {
		log.Printf("input: sysfs cannot set pull resistors, gpio%d/gpio%d use the board default", pinA, pinB)
	}
	a, err := NewSysfsPin(pinA)
	if err != nil {
		return nil, err
	}
	b, err := NewSysfsPin(pinB)
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
