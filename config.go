package main

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v2"

	"quadenc/console"
	"quadenc/encoder"
	"quadenc/eventpipe"
	"quadenc/indicator"
	"quadenc/input"
	"quadenc/keyboard"
	"quadenc/mqtt"
)

// Bench wiring defaults.
const (
	defaultPinA   = 26
	defaultPinB   = 27
	defaultPollMS = 100
)

// Config is the main configuration structure for quadenc.
type Config struct {
	// Node name used in MQTT topics and as the MQTT client ID
	ClientID string `yaml:"client_id"`

	// Interval between bounded position reads
	PollMS int `yaml:"poll_ms"`

	// Phase pin wiring
	Input input.Config `yaml:"input"`

	// Decoding and bounds
	Encoder EncoderConfig `yaml:"encoder"`

	// MQTT connection settings
	MQTT mqtt.Config `yaml:"mqtt"`

	// Limit indicator configuration
	Indicator indicator.Config `yaml:"indicator"`

	// Bench command inputs
	EventPipe eventpipe.Config `yaml:"event_pipe"`
	Keyboard  keyboard.Config  `yaml:"keyboard"`
	Console   console.Config   `yaml:"console"`
}

// EncoderConfig holds the encoder construction options and the bounds used
// by the poll loop.
type EncoderConfig struct {
	Reverse bool   `yaml:"reverse"`
	Scale   *int   `yaml:"scale"` // nil = encoder.DefaultScale
	Min     *int64 `yaml:"min"`   // nil = encoder.DefaultMin
	Max     *int64 `yaml:"max"`   // nil = encoder.DefaultMax
}

// Options returns the encoder options described by the config.
func (c EncoderConfig) Options() []encoder.Option {
	opts := []encoder.Option{encoder.WithReverse(c.Reverse)}
	if c.Scale != nil {
		opts = append(opts, encoder.WithScale(*c.Scale))
	}
	return opts
}

// Bounds returns the clamp-and-wrap bounds.
func (c EncoderConfig) Bounds() (min, max int64) {
	min, max = encoder.DefaultMin, encoder.DefaultMax
	if c.Min != nil {
		min = *c.Min
	}
	if c.Max != nil {
		max = *c.Max
	}
	return min, max
}

// PollInterval returns the configured poll period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollMS) * time.Millisecond
}

// loadConfig decodes and validates a yaml config, filling in defaults.
func loadConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client_id missing in config file")
	}
	if cfg.PollMS <= 0 {
		cfg.PollMS = defaultPollMS
	}
	if cfg.Input.PinA == 0 && cfg.Input.PinB == 0 {
		cfg.Input.PinA = defaultPinA
		cfg.Input.PinB = defaultPinB
	}
	if cfg.Encoder.Scale != nil && *cfg.Encoder.Scale < 1 {
		return nil, fmt.Errorf("encoder scale %d: %w", *cfg.Encoder.Scale, encoder.ErrInvalidScale)
	}
	if min, max := cfg.Encoder.Bounds(); min > max {
		return nil, fmt.Errorf("encoder bounds %d..%d: %w", min, max, encoder.ErrInvalidBounds)
	}

	return &cfg, nil
}
