package encoder

import (
	"bytes"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// fakePin implements Pin with a settable level and a single watch slot.
type fakePin struct {
	level atomic.Bool

	mu      sync.Mutex
	handler func()
	prios   []Priority

	hardErr   error // returned for PriorityHard
	softErr   error // returned for PrioritySoft
	fireOnArm bool  // deliver an edge while Watch is still running
}

func (p *fakePin) Level() bool { return p.level.Load() }

func (p *fakePin) Watch(edge Edge, prio Priority, handler func()) (io.Closer, error) {
	p.mu.Lock()
	p.prios = append(p.prios, prio)
	p.mu.Unlock()

	if prio == PriorityHard && p.hardErr != nil {
		return nil, p.hardErr
	}
	if prio == PrioritySoft && p.softErr != nil {
		return nil, p.softErr
	}
	if edge != EdgeBoth {
		return nil, errors.New("fake: only both edges supported")
	}
	if p.fireOnArm {
		handler()
	}

	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
	return closerFunc(func() error {
		p.mu.Lock()
		p.handler = nil
		p.mu.Unlock()
		return nil
	}), nil
}

func (p *fakePin) armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler != nil
}

// fire invokes the handler as an interrupt would, without changing the level.
func (p *fakePin) fire() {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h()
	}
}

// set changes the level and fires the handler if it changed.
func (p *fakePin) set(level bool) {
	if p.level.Swap(level) != level {
		p.fire()
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newTestEncoder(t *testing.T, opts ...Option) (*Encoder, *fakePin, *fakePin) {
	t.Helper()
	a, b := &fakePin{}, &fakePin{}
	e, err := New(a, b, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e, a, b
}

// stepForward moves the pins one transition along 00 -> 10 -> 11 -> 01 -> 00.
func stepForward(a, b *fakePin) {
	if a.Level() == b.Level() {
		a.set(!a.Level())
	} else {
		b.set(!b.Level())
	}
}

// stepBackward moves the pins one transition along 00 -> 01 -> 11 -> 10 -> 00.
func stepBackward(a, b *fakePin) {
	if a.Level() == b.Level() {
		b.set(!b.Level())
	} else {
		a.set(!a.Level())
	}
}

func TestEncoder_DecodeForward(t *testing.T) {
	e, a, b := newTestEncoder(t)

	for i := 0; i < 8; i++ {
		stepForward(a, b)
	}

	if got := e.Value(); got != 8 {
		t.Errorf("expected value=8, got %d", got)
	}
	if got := e.Position(); got != 2 {
		t.Errorf("expected position=2, got %d", got)
	}
	if got := e.Direction(); got != Forward {
		t.Errorf("expected direction forward, got %v", got)
	}
}

func TestEncoder_DecodeBackward(t *testing.T) {
	e, a, b := newTestEncoder(t)

	for i := 0; i < 8; i++ {
		stepBackward(a, b)
	}

	if got := e.Value(); got != -8 {
		t.Errorf("expected value=-8, got %d", got)
	}
	if got := e.Position(); got != -2 {
		t.Errorf("expected position=-2, got %d", got)
	}
	if got := e.Direction(); got != Backward {
		t.Errorf("expected direction backward, got %v", got)
	}
}

// TestEncoder_DecodeMixed checks that value tracks the net step count for
// any valid transition sequence.
func TestEncoder_DecodeMixed(t *testing.T) {
	e, a, b := newTestEncoder(t)

	moves := "fffbbfffffbbbbbbbbbfbf"
	var want int64
	for _, m := range moves {
		if m == 'f' {
			stepForward(a, b)
			want++
		} else {
			stepBackward(a, b)
			want--
		}
		if got := e.Value(); got != want {
			t.Fatalf("after %q: expected value=%d, got %d", m, want, got)
		}
	}
}

// TestEncoder_HandlersAgree checks, for every pin state, that a forward
// transition counts +1 whichever pin's edge delivers it.
func TestEncoder_HandlersAgree(t *testing.T) {
	states := []struct{ a, b bool }{
		{false, false}, {true, false}, {true, true}, {false, true},
	}
	for i, from := range states {
		to := states[(i+1)%len(states)]

		e, a, b := newTestEncoder(t)
		a.level.Store(from.a)
		b.level.Store(from.b)
		a.set(to.a)
		b.set(to.b)

		if got := e.Value(); got != 1 {
			t.Errorf("%v -> %v: expected +1, got %d", from, to, got)
		}
	}
}

func TestEncoder_Reverse(t *testing.T) {
	normal, na, nb := newTestEncoder(t)
	reversed, ra, rb := newTestEncoder(t, WithReverse(true))

	seq := "ffbfffbb"
	for _, m := range seq {
		if m == 'f' {
			stepForward(na, nb)
			stepForward(ra, rb)
		} else {
			stepBackward(na, nb)
			stepBackward(ra, rb)
		}
		if normal.Value() != -reversed.Value() {
			t.Fatalf("expected opposite values, got %d and %d", normal.Value(), reversed.Value())
		}
	}
	if !reversed.Reversed() {
		t.Error("expected Reversed() true")
	}
}

func TestEncoder_PositionFloorDivision(t *testing.T) {
	e, _, _ := newTestEncoder(t)

	tests := []struct {
		raw  int64
		want int64
	}{
		{0, 0},
		{3, 0},
		{4, 1},
		{7, 1},
		{-1, -1},
		{-4, -1},
		{-5, -2},
		{-8, -2},
	}
	for _, tt := range tests {
		e.SetValue(tt.raw)
		if got := e.Position(); got != tt.want {
			t.Errorf("raw=%d: expected position=%d, got %d", tt.raw, tt.want, got)
		}
	}
}

func TestEncoder_SetPositionRoundTrip(t *testing.T) {
	for _, scale := range []int{1, 2, 4, 7} {
		e, _, _ := newTestEncoder(t, WithScale(scale))
		for v := int64(-20); v <= 20; v++ {
			if got := e.SetPosition(v); got != v {
				t.Errorf("scale=%d: SetPosition(%d) returned %d", scale, v, got)
			}
			if got := e.Position(); got != v {
				t.Errorf("scale=%d: Position after SetPosition(%d) = %d", scale, v, got)
			}
			if got := e.Value(); got != v*int64(scale) {
				t.Errorf("scale=%d: expected raw=%d, got %d", scale, v*int64(scale), got)
			}
		}
	}
}

func TestEncoder_SetValue(t *testing.T) {
	e, _, _ := newTestEncoder(t)

	if got := e.SetValue(-13); got != -13 {
		t.Errorf("expected -13, got %d", got)
	}
	if got := e.Value(); got != -13 {
		t.Errorf("expected value=-13, got %d", got)
	}
}

func TestEncoder_Reset(t *testing.T) {
	e, a, b := newTestEncoder(t)

	for i := 0; i < 11; i++ {
		stepForward(a, b)
	}
	e.Reset()

	if got := e.Value(); got != 0 {
		t.Errorf("expected value=0, got %d", got)
	}
	if got := e.Position(); got != 0 {
		t.Errorf("expected position=0, got %d", got)
	}
}

func TestEncoder_ClampRead(t *testing.T) {
	tests := []struct {
		name      string
		stored    int64
		want      int64
		wantAfter int64
		wantMin   bool
		wantMax   bool
	}{
		{"below min wraps to max", 0, 1, 99, true, false},
		{"above max wraps to min", 150, 99, 1, false, true},
		{"in range unchanged", 50, 50, 50, false, false},
		{"at min unchanged", 1, 1, 1, false, false},
		{"at max unchanged", 99, 99, 99, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotMin, gotMax []int64
			e, _, _ := newTestEncoder(t, WithHandlers(Handlers{
				OnMinReached: func(p int64) { gotMin = append(gotMin, p) },
				OnMaxReached: func(p int64) { gotMax = append(gotMax, p) },
			}))
			e.SetPosition(tt.stored)

			got, err := e.ClampRead(DefaultMin, DefaultMax)
			if err != nil {
				t.Fatalf("ClampRead: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
			if after := e.Position(); after != tt.wantAfter {
				t.Errorf("expected stored position=%d, got %d", tt.wantAfter, after)
			}
			if (len(gotMin) == 1) != tt.wantMin || len(gotMin) > 1 {
				t.Errorf("min notifications: %v", gotMin)
			}
			if (len(gotMax) == 1) != tt.wantMax || len(gotMax) > 1 {
				t.Errorf("max notifications: %v", gotMax)
			}
			if tt.wantMin && gotMin[0] != tt.stored {
				t.Errorf("expected min notification with %d, got %d", tt.stored, gotMin[0])
			}
			if tt.wantMax && gotMax[0] != tt.stored {
				t.Errorf("expected max notification with %d, got %d", tt.stored, gotMax[0])
			}
		})
	}
}

func TestEncoder_ClampReadInvalidBounds(t *testing.T) {
	e, _, _ := newTestEncoder(t)
	e.SetPosition(5)

	_, err := e.ClampRead(10, 2)
	if !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("expected ErrInvalidBounds, got %v", err)
	}
	if got := e.Position(); got != 5 {
		t.Errorf("expected position untouched, got %d", got)
	}
}

func TestEncoder_ClampReadEqualBounds(t *testing.T) {
	e, _, _ := newTestEncoder(t)
	e.SetPosition(3)

	got, err := e.ClampRead(5, 5)
	if err != nil || got != 5 {
		t.Fatalf("expected 5, got %d (%v)", got, err)
	}
	if p := e.Position(); p != 5 {
		t.Errorf("expected stored 5, got %d", p)
	}
	got, _ = e.ClampRead(5, 5)
	if got != 5 {
		t.Errorf("expected in range 5, got %d", got)
	}
}

func TestNew_InvalidScale(t *testing.T) {
	for _, scale := range []int{0, -1, -4} {
		a, b := &fakePin{}, &fakePin{}
		_, err := New(a, b, WithScale(scale))
		if !errors.Is(err, ErrInvalidScale) {
			t.Errorf("scale=%d: expected ErrInvalidScale, got %v", scale, err)
		}
		if a.armed() || b.armed() {
			t.Errorf("scale=%d: pins armed after failed construction", scale)
		}
	}
}

func TestNew_NilPin(t *testing.T) {
	if _, err := New(nil, &fakePin{}); !errors.Is(err, ErrNilPin) {
		t.Errorf("expected ErrNilPin, got %v", err)
	}
}

func TestNew_DefaultScale(t *testing.T) {
	e, _, _ := newTestEncoder(t)
	if e.Scale() != DefaultScale {
		t.Errorf("expected scale %d, got %d", DefaultScale, e.Scale())
	}
}

func TestNew_PriorityFallback(t *testing.T) {
	var buf bytes.Buffer
	a := &fakePin{hardErr: ErrPriorityUnsupported}
	b := &fakePin{}

	e, err := New(a, b, WithLogger(log.New(&buf, "", 0)))
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	defer e.Close()

	if len(a.prios) != 2 || a.prios[0] != PriorityHard || a.prios[1] != PrioritySoft {
		t.Errorf("expected hard then soft on pin A, got %v", a.prios)
	}
	if len(b.prios) != 1 || b.prios[0] != PriorityHard {
		t.Errorf("expected hard only on pin B, got %v", b.prios)
	}
	if !strings.Contains(buf.String(), "falling back") {
		t.Errorf("expected fallback to be logged, got %q", buf.String())
	}

	stepForward(a, b)
	if e.Value() != 1 {
		t.Errorf("expected soft registered pin to count, got %d", e.Value())
	}
}

func TestNew_FallbackFails(t *testing.T) {
	softErr := errors.New("line busy")
	a := &fakePin{}
	b := &fakePin{hardErr: ErrPriorityUnsupported, softErr: softErr}

	_, err := New(a, b, WithLogger(log.New(io.Discard, "", 0)))

	var regErr *RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("expected RegistrationError, got %v", err)
	}
	if regErr.Pin != "B" {
		t.Errorf("expected pin B, got %s", regErr.Pin)
	}
	if !errors.Is(err, softErr) {
		t.Errorf("expected wrapped soft error, got %v", err)
	}
	if a.armed() {
		t.Error("pin A left armed after pin B failed")
	}
}

func TestNew_NoFallbackOnOtherErrors(t *testing.T) {
	hardErr := errors.New("no such line")
	a := &fakePin{hardErr: hardErr}

	_, err := New(a, &fakePin{})
	if !errors.Is(err, hardErr) {
		t.Fatalf("expected %v, got %v", hardErr, err)
	}
	if len(a.prios) != 1 {
		t.Errorf("expected a single attempt, got %v", a.prios)
	}
}

func TestNew_EdgeDuringConstructionIgnored(t *testing.T) {
	a := &fakePin{fireOnArm: true}
	b := &fakePin{fireOnArm: true}

	e, err := New(a, b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	if got := e.Value(); got != 0 {
		t.Errorf("expected value=0, got %d", got)
	}
}

// TestEncoder_ConcurrentEdges fires edges from two goroutines at once.
// With A high and B low, every A edge decodes forward and every B edge
// decodes backward, so the result must be the exact difference.
func TestEncoder_ConcurrentEdges(t *testing.T) {
	e, a, b := newTestEncoder(t)
	a.level.Store(true)

	const nA, nB = 20000, 13000
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < nA; i++ {
			a.fire()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < nB; i++ {
			b.fire()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = e.Position()
			_ = e.Value()
		}
	}()
	wg.Wait()

	if got := e.Value(); got != nA-nB {
		t.Errorf("expected value=%d, got %d", nA-nB, got)
	}
}

func TestEncoder_CloseDisarms(t *testing.T) {
	e, a, b := newTestEncoder(t)

	stepForward(a, b)
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if a.armed() || b.armed() {
		t.Error("expected both registrations closed")
	}

	// Handlers captured before Close must also be inert.
	e.edgeA()
	e.edgeB()
	for i := 0; i < 5; i++ {
		stepForward(a, b)
	}
	if got := e.Value(); got != 1 {
		t.Errorf("expected value=1 after close, got %d", got)
	}

	if err := e.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	e.Reset()
	if e.Value() != 0 {
		t.Error("expected accessors to keep working after Close")
	}
}
