// Package console accepts encoder commands as text lines on a serial port,
// using the same syntax as the event pipe.
package console

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tarm/serial"

	"quadenc/eventpipe"
)

const defaultBaud = 115200

// maxLine bounds a single command line; longer input is discarded.
const maxLine = 256

// Config holds serial console settings.
type Config struct {
	Device string `yaml:"device"` // e.g. /dev/ttyUSB0, empty = disabled
	Baud   int    `yaml:"baud"`   // default 115200
}

// Console reads command lines from a serial port.
type Console struct {
	port    *serial.Port
	device  string
	handler eventpipe.CommandHandler
	line    []byte
	discard bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New opens the serial console. Returns nil, nil if no device is configured.
func New(cfg Config, handler eventpipe.CommandHandler) (*Console, error) {
	if cfg.Device == "" {
		return nil, nil
	}
	if cfg.Baud == 0 {
		cfg.Baud = defaultBaud
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Device, err)
	}

	c := newConsole(handler)
	c.port = port
	c.device = cfg.Device
	return c, nil
}

func newConsole(handler eventpipe.CommandHandler) *Console {
	ctx, cancel := context.WithCancel(context.Background())
	return &Console{
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start reads the port until Close is called. Should be run as a goroutine.
func (c *Console) Start() {
	log.Printf("Serial console listening on %s", c.device)
	buf := make([]byte, 64)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		n, err := c.port.Read(buf)
		if err != nil || n == 0 {
			// Timeout, try again
			time.Sleep(100 * time.Millisecond)
			continue
		}
		c.feed(buf[:n])
	}
}

// feed appends raw bytes and dispatches every complete line. A line longer
// than maxLine is dropped up to and including its terminator.
func (c *Console) feed(b []byte) {
	for len(b) > 0 {
		i := bytes.IndexAny(b, "\r\n")
		if i < 0 {
			c.buffer(b)
			return
		}
		c.buffer(b[:i])
		b = b[i+1:]

		if c.discard {
			c.discard = false
			c.line = c.line[:0]
			continue
		}
		line := string(c.line)
		c.line = c.line[:0]

		cmd, err := eventpipe.ParseLine(line)
		if err != nil {
			log.Printf("Serial console: %v", err)
			continue
		}
		if cmd.Kind != eventpipe.Nop && c.handler != nil {
			c.handler(cmd)
		}
	}
}

func (c *Console) buffer(b []byte) {
	if c.discard {
		return
	}
	c.line = append(c.line, b...)
	if len(c.line) > maxLine {
		log.Printf("Serial console: line too long, discarded")
		c.discard = true
		c.line = c.line[:0]
	}
}

// Close stops the reader and closes the port.
func (c *Console) Close() error {
	c.cancel()
	if c.port == nil {
		return nil
	}
	return c.port.Close()
}
