package indicator

import (
	"fmt"
	"io"
	"os"
)

// Neopixel command strings for the external neopixel tool.
const (
	neoConnectionLost = "@2 !150000 001010"
	neoInRange        = "@3 !150000 400000"
	neoMinReached     = "@2 !10000 ff"
	neoMaxReached     = "@1 !50000 8000"
	neoTerminated     = "@0 010101"
)

// Neopixel implements Indicator using an external neopixel tool via named pipe.
type Neopixel struct {
	pipe io.WriteCloser
}

// NewNeopixel creates a new Neopixel indicator.
func NewNeopixel(pipePath string) (*Neopixel, error) {
	f, err := os.OpenFile(pipePath, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open neopixel pipe %s: %w", pipePath, err)
	}
	return &Neopixel{pipe: f}, nil
}

// InRange implements Indicator.InRange.
func (n *Neopixel) InRange() {
	n.write(neoInRange)
}

// MinReached implements Indicator.MinReached.
func (n *Neopixel) MinReached() {
	n.write(neoMinReached)
}

// MaxReached implements Indicator.MaxReached.
func (n *Neopixel) MaxReached() {
	n.write(neoMaxReached)
}

// ConnectionLost implements Indicator.ConnectionLost.
func (n *Neopixel) ConnectionLost() {
	n.write(neoConnectionLost)
}

// Shutdown implements Indicator.Shutdown.
func (n *Neopixel) Shutdown() {
	n.write(neoTerminated)
}

// Release implements Indicator.Release.
func (n *Neopixel) Release() error {
	if n.pipe == nil {
		return nil
	}
	return n.pipe.Close()
}

func (n *Neopixel) write(s string) {
	if n.pipe != nil {
		n.pipe.Write([]byte(s))
	}
}
