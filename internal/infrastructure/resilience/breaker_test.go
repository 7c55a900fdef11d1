package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errDown = errors.New("relay down")

func fail(context.Context) error    { return errDown }
func succeed(context.Context) error { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := New("smtp", Settings{FailureThreshold: 2, Cooldown: time.Minute, Now: clock.Now})
	ctx := context.Background()

	assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := New("smtp", Settings{FailureThreshold: 1, Cooldown: time.Minute, Now: clock.Now})
	ctx := context.Background()

	require.ErrorIs(t, b.Execute(ctx, fail), errDown)
	clock.Advance(time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())

	// Failed probe reopens
	assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, b.State())

	clock.Advance(time.Minute)
	assert.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerSingleProbe(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := New("smtp", Settings{FailureThreshold: 1, Cooldown: time.Second, Now: clock.Now})
	ctx := context.Background()

	require.ErrorIs(t, b.Execute(ctx, fail), errDown)
	clock.Advance(time.Second)

	inProbe := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(ctx, func(context.Context) error {
			close(inProbe)
			<-release
			return nil
		})
	}()

	<-inProbe
	assert.ErrorIs(t, b.Execute(ctx, succeed), ErrCircuitOpen)
	close(release)
	assert.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := New("smtp", Settings{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerStateChangeCallback(t *testing.T) {
	var transitions []string
	b := New("smtp", Settings{
		FailureThreshold: 1,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	_ = b.Execute(context.Background(), fail)
	assert.Equal(t, []string{"smtp:closed->open"}, transitions)
	assert.Equal(t, "smtp", b.Name())
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := New("smtp", Settings{FailureThreshold: 2})
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, succeed)
	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateClosed, b.State())
}
