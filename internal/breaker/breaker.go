// Package breaker guards calls to a flaky dependency with a circuit breaker
// driven by the outcomes of the most recent calls.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without invoking the operation while the circuit is open.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type Config struct {
	Name string
	// WindowSize is the number of most recent outcomes considered.
	WindowSize int
	// FailureThreshold is the failure fraction that must be exceeded, once
	// the window is full, to open the circuit.
	FailureThreshold float64
	// ReopenAfter is how long the circuit stays open before a probe is let through.
	ReopenAfter time.Duration

	Now           func() time.Time
	OnStateChange func(name string, from, to State)
}

func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		WindowSize:       10,
		FailureThreshold: 0.5,
		ReopenAfter:      30 * time.Second,
	}
}

type Breaker struct {
	cfg Config

	mu       sync.Mutex
	state    State
	openedAt time.Time
	probing  bool
	window   outcomes
}

func New(cfg Config) *Breaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		cfg:    cfg,
		window: newOutcomes(cfg.WindowSize),
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op unless the circuit is open. The lock is held only while
// admitting the call and while recording its outcome. A cancelled or timed
// out op counts as a failure, and so does a panic, which is re-raised after
// the outcome is recorded.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	ok := false
	defer func() { b.record(probe, ok) }()

	err = op(ctx)
	ok = err == nil
	return err
}

func (b *Breaker) admit() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.ReopenAfter {
			return false, ErrOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return true, nil
	default:
		// A single probe at a time while half-open.
		if b.probing {
			return false, ErrOpen
		}
		b.probing = true
		return true, nil
	}
}

func (b *Breaker) record(probe bool, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probing = false
		if ok {
			b.window.reset()
			b.transition(StateClosed)
			return
		}
		b.openedAt = b.cfg.Now()
		b.transition(StateOpen)
		return
	}

	// Outcomes of calls admitted before the circuit opened are dropped.
	if b.state != StateClosed {
		return
	}

	b.window.push(ok)
	if b.window.full() && b.window.failureRate() > b.cfg.FailureThreshold {
		b.openedAt = b.cfg.Now()
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// outcomes is a fixed-capacity ring of call results.
type outcomes struct {
	buf      []bool
	next     int
	size     int
	failures int
}

func newOutcomes(capacity int) outcomes {
	return outcomes{buf: make([]bool, capacity)}
}

func (o *outcomes) push(ok bool) {
	if o.size == len(o.buf) {
		if !o.buf[o.next] {
			o.failures--
		}
	} else {
		o.size++
	}
	o.buf[o.next] = ok
	if !ok {
		o.failures++
	}
	o.next = (o.next + 1) % len(o.buf)
}

func (o *outcomes) full() bool { return o.size == len(o.buf) }

func (o *outcomes) failureRate() float64 {
	if o.size == 0 {
		return 0
	}
	return float64(o.failures) / float64(o.size)
}

func (o *outcomes) reset() {
	for i := range o.buf {
		o.buf[i] = false
	}
	o.next, o.size, o.failures = 0, 0, 0
}
