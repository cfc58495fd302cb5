package indicator

// Multi combines multiple Indicator implementations.
type Multi struct {
	indicators []Indicator
}

// NewMulti fans every call out to indicators in order.
func NewMulti(indicators ...Indicator) *Multi {
	return &Multi{indicators: indicators}
}

// InRange implements Indicator.InRange.
func (m *Multi) InRange() {
	for _, ind := range m.indicators {
		ind.InRange()
	}
}

// MinReached implements Indicator.MinReached.
func (m *Multi) MinReached() {
	for _, ind := range m.indicators {
		ind.MinReached()
	}
}

// MaxReached implements Indicator.MaxReached.
func (m *Multi) MaxReached() {
	for _, ind := range m.indicators {
		ind.MaxReached()
	}
}

// ConnectionLost implements Indicator.ConnectionLost.
func (m *Multi) ConnectionLost() {
	for _, ind := range m.indicators {
		ind.ConnectionLost()
	}
}

// Shutdown implements Indicator.Shutdown.
func (m *Multi) Shutdown() {
	for _, ind := range m.indicators {
		ind.Shutdown()
	}
}

// Release implements Indicator.Release.
func (m *Multi) Release() error {
	var lastErr error
	for _, ind := range m.indicators {
		if err := ind.Release(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
