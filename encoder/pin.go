package encoder

import "io"

// Edge selects which transitions of an input trigger a callback.
type Edge int

const (
	EdgeRising Edge = iota + 1
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	default:
		return "none"
	}
}

// Priority is a hint for how urgently the platform should deliver edges.
type Priority int

const (
	// PriorityHard asks for delivery in interrupt context.
	PriorityHard Priority = iota
	// PrioritySoft accepts deferred delivery, e.g. from a watcher goroutine.
	PrioritySoft
)

func (p Priority) String() string {
	if p == PriorityHard {
		return "hard"
	}
	return "soft"
}

// Pin is the digital input capability the encoder consumes.
//
// Level must be cheap and must not block: it is called from inside edge
// handlers. Watch arms handler for the given edges and returns a
// registration that disarms it when closed. A pin that cannot honour the
// requested priority returns an error wrapping ErrPriorityUnsupported.
type Pin interface {
	Level() bool
	Watch(edge Edge, prio Priority, handler func()) (io.Closer, error)
}
