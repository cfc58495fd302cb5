//go:build linux && !baremetal

// Package keyboard turns arrow key presses on an evdev input device into
// encoder commands, for driving a simulated encoder from a bench keyboard.
package keyboard

import (
	"context"
	"fmt"
	"log"

	"github.com/kenshaw/evdev"

	"quadenc/eventpipe"
)

// Config holds configuration for the keyboard driver.
type Config struct {
	Device string `yaml:"device"` // e.g. "/dev/input/event0"
}

// Keyboard reads key events from an evdev device.
type Keyboard struct {
	device  *evdev.Evdev
	handler eventpipe.CommandHandler
	ctx     context.Context
	cancel  context.CancelFunc
}

// New opens the configured device. Returns nil if no device is configured.
func New(cfg Config, handler eventpipe.CommandHandler) (*Keyboard, error) {
	if cfg.Device == "" {
		return nil, nil
	}

	dev, err := evdev.OpenFile(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open evdev %s: %w", cfg.Device, err)
	}
	log.Printf("Opened keyboard device: %s", dev.Name())

	ctx, cancel := context.WithCancel(context.Background())
	return &Keyboard{
		device:  dev,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start delivers commands until Close is called.
// This should be called as a goroutine.
func (k *Keyboard) Start() {
	ch := k.device.Poll(k.ctx)
	for {
		select {
		case <-k.ctx.Done():
			return
		case event := <-ch:
			if event == nil {
				log.Printf("Keyboard device closed")
				return
			}
			if _, ok := event.Type.(evdev.KeyType); !ok {
				continue
			}
			// 1 = press, 2 = autorepeat
			if event.Value != 1 && event.Value != 2 {
				continue
			}
			cmd, ok := commandForKey(evdev.KeyType(event.Code))
			if ok && k.handler != nil {
				k.handler(cmd)
			}
		}
	}
}

// Close stops Start and releases the device.
func (k *Keyboard) Close() error {
	k.cancel()
	return k.device.Close()
}

// commandForKey maps Left/Right to one detent, Down/Up to one transition
// and Enter to a counter reset.
func commandForKey(key evdev.KeyType) (eventpipe.Command, bool) {
	switch key {
	case evdev.KeyRight:
		return eventpipe.Command{Kind: eventpipe.Turn, N: 1}, true
	case evdev.KeyLeft:
		return eventpipe.Command{Kind: eventpipe.Turn, N: -1}, true
	case evdev.KeyUp:
		return eventpipe.Command{Kind: eventpipe.Step, N: 1}, true
	case evdev.KeyDown:
		return eventpipe.Command{Kind: eventpipe.Step, N: -1}, true
	case evdev.KeyEnter:
		return eventpipe.Command{Kind: eventpipe.Reset}, true
	}
	return eventpipe.Command{}, false
}
