package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the guarded function while the
// breaker is open or its half-open probe slot is taken.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures a Breaker
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold uint32
	// Cooldown is how long the breaker stays open before allowing a probe
	Cooldown time.Duration
	// OnStateChange is called with the lock released whenever the state changes
	OnStateChange func(name string, from, to State)
	// Now overrides the clock. Tests only.
	Now func() time.Time
}

// Breaker guards calls to an unreliable dependency such as an SMTP relay.
// After FailureThreshold consecutive failures it rejects calls for Cooldown,
// then lets exactly one probe through. A successful probe closes it again.
type Breaker struct {
	name     string
	settings Settings

	mu       sync.Mutex
	state    State
	failures uint32
	openedAt time.Time
	probing  bool
}

// New creates a breaker. Zero settings fall back to 3 failures and 5 minutes.
func New(name string, settings Settings) *Breaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 3
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 5 * time.Minute
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &Breaker{name: name, settings: settings}
}

// Name returns the breaker name
func (b *Breaker) Name() string { return b.name }

// State returns the current state, promoting open to half-open once the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

// Execute runs fn unless the breaker is open. Context cancellation is not
// counted as a failure of the dependency.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		b.release()
		return err
	}
	b.after(err == nil)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) release() {
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

func (b *Breaker) after(success bool) {
	b.mu.Lock()
	from := b.state
	b.probing = false

	if success {
		b.failures = 0
		b.state = StateClosed
	} else {
		b.failures++
		if from == StateHalfOpen || b.failures >= b.settings.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.settings.Now()
		}
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

// current must be called with mu held
func (b *Breaker) current() State {
	if b.state == StateOpen && b.settings.Now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.state = StateHalfOpen
		b.failures = 0
	}
	return b.state
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
