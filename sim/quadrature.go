package sim

import "sync"

// StepsPerDetent is the number of quadrature transitions in one click of
// a typical mechanical encoder.
const StepsPerDetent = 4

// Quadrature drives a pair of simulated pins through the two bit gray
// sequence a real encoder produces.
//
//	forward:  00 -> 10 -> 11 -> 01 -> 00
//	backward: 00 -> 01 -> 11 -> 10 -> 00
type Quadrature struct {
	mu sync.Mutex
	A  *Pin
	B  *Pin
}

// NewQuadrature creates a generator over a and b.
func NewQuadrature(a, b *Pin) *Quadrature {
	return &Quadrature{A: a, B: b}
}

// Step makes n transitions, forward for positive n and backward for
// negative n. Exactly one pin changes per transition.
func (q *Quadrature) Step(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for ; n > 0; n-- {
		q.advance(true)
	}
	for ; n < 0; n++ {
		q.advance(false)
	}
}

// Turn moves n detents.
func (q *Quadrature) Turn(n int) {
	q.Step(n * StepsPerDetent)
}

func (q *Quadrature) advance(forward bool) {
	same := q.A.Level() == q.B.Level()
	if same == forward {
		q.A.Toggle()
	} else {
		q.B.Toggle()
	}
}
