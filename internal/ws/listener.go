package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Listener accepts TCP connections on the sync port and hands each one to
// a Handler on its own goroutine.
type Listener struct {
	addr       string
	handler    *Handler
	registry   *Registry
	acceptPoll time.Duration
	log        *zap.Logger

	running atomic.Bool
	mu      sync.Mutex
	ln      net.Listener          // Protected by mu
	conns   map[net.Conn]struct{} // Protected by mu
	wg      sync.WaitGroup
}

// NewListener creates a listener for addr. acceptPoll bounds how long an
// Accept blocks before the loop re-checks whether it should stop.
func NewListener(addr string, handler *Handler, registry *Registry, acceptPoll time.Duration, log *zap.Logger) *Listener {
	if acceptPoll <= 0 {
		acceptPoll = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{
		addr:       addr,
		handler:    handler,
		registry:   registry,
		acceptPoll: acceptPoll,
		log:        log.Named("listener"),
		conns:      make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds the configured address and serves until ctx is
// done or Shutdown is called.
func (l *Listener) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", l.addr, err)
	}
	return l.Serve(ctx, ln)
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Serve accepts on ln. It returns nil on a requested stop.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	l.mu.Lock()
	l.ln = ln
	l.running.Store(true)
	l.mu.Unlock()
	defer ln.Close()

	l.log.Info("websocket server listening", zap.String("addr", ln.Addr().String()))

	for l.running.Load() && ctx.Err() == nil {
		if d, ok := ln.(deadliner); ok {
			_ = d.SetDeadline(time.Now().Add(l.acceptPoll))
		}

		raw, err := ln.Accept()
		if err != nil {
			if !l.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			l.log.Warn("accept failed", zap.Error(err))
			continue
		}

		if !l.track(raw) {
			_ = raw.Close()
			return nil
		}
		go func() {
			defer l.untrack(raw)
			l.handler.Serve(ctx, raw)
		}()
	}
	return nil
}

// track records an accepted socket unless Shutdown has already begun.
// wg.Add only happens under mu while running.
func (l *Listener) track(raw net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running.Load() {
		return false
	}
	l.conns[raw] = struct{}{}
	l.wg.Add(1)
	return true
}

func (l *Listener) untrack(raw net.Conn) {
	l.mu.Lock()
	delete(l.conns, raw)
	l.mu.Unlock()
	l.wg.Done()
}

func (l *Listener) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.conns)
}

// Addr returns the bound address, or nil before Serve has started
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Running reports whether the accept loop is active
func (l *Listener) Running() bool { return l.running.Load() }

// Shutdown stops accepting, closes every open connection and waits for the
// connection goroutines until ctx expires.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.running.Store(false)
	if l.ln != nil {
		_ = l.ln.Close()
	}
	// Sockets still in the handshake are not registered yet
	for raw := range l.conns {
		_ = raw.Close()
	}
	l.mu.Unlock()

	closed := l.registry.CloseAll()
	l.log.Info("websocket server stopping", zap.Int("closed", closed))

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
