//go:build !linux || baremetal

package keyboard

import (
	"errors"

	"quadenc/eventpipe"
)

var ErrNotSupported = errors.New("keyboard input not supported on this platform")

// Keyboard is a stub for non-linux platforms.
type Keyboard struct{}

// Config holds configuration for the keyboard driver.
type Config struct {
	Device string `yaml:"device"`
}

// New returns an error on non-linux platforms.
func New(cfg Config, handler eventpipe.CommandHandler) (*Keyboard, error) {
	if cfg.Device == "" {
		return nil, nil
	}
	return nil, ErrNotSupported
}

func (k *Keyboard) Start()       {}
func (k *Keyboard) Close() error { return nil }
