package indicator

// Indicator is the interface for encoder status indicators (LEDs, neopixels, etc).
type Indicator interface {
	// InRange shows the position is within bounds.
	InRange()

	// MinReached shows the position went below the minimum and wrapped to the top.
	MinReached()

	// MaxReached shows the position went above the maximum and wrapped to the bottom.
	MaxReached()

	// ConnectionLost shows the status broker is unreachable.
	ConnectionLost()

	// Shutdown sets the indicator to shutdown state.
	Shutdown()

	// Release releases any hardware resources.
	Release() error
}

// Config holds configuration for indicator implementations.
type Config struct {
	// GPIO LED pins (nil = not configured)
	OKPin  *uint8 `yaml:"ok_pin"`
	MinPin *uint8 `yaml:"min_pin"`
	MaxPin *uint8 `yaml:"max_pin"`

	// Neopixel pipe path (empty = not configured)
	NeopixelPipe string `yaml:"neopixel_pipe"`
}

// New creates an Indicator based on the provided configuration.
// Returns a Multi indicator if both GPIO and Neopixel are configured.
func New(cfg Config) (Indicator, error) {
	var indicators []Indicator

	if cfg.OKPin != nil || cfg.MinPin != nil || cfg.MaxPin != nil {
		gpio, err := NewGPIO(cfg.OKPin, cfg.MinPin, cfg.MaxPin)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, gpio)
	}

	if cfg.NeopixelPipe != "" {
		neo, err := NewNeopixel(cfg.NeopixelPipe)
		if err != nil {
			for _, ind := range indicators {
				ind.Release()
			}
			return nil, err
		}
		indicators = append(indicators, neo)
	}

	if len(indicators) == 0 {
		return &Noop{}, nil
	}
	if len(indicators) == 1 {
		return indicators[0], nil
	}
	return &Multi{indicators: indicators}, nil
}
