// Package server implements the knock-knock server: a Listener that
// owns the listening socket and the set of live sessions, and a
// Handler per accepted connection that plays the jokes.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	kkerr "knockknock/internal/errors"
	"knockknock/internal/metrics"
	"knockknock/internal/protocol"
	"knockknock/internal/retry"
	"knockknock/internal/session"
	"knockknock/util"
)

// State is the Listener lifecycle: Idle → Listening → Stopped.
type State int

const (
	StateIdle State = iota
	StateListening
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options configures a Listener.
type Options struct {
	// Source seeds each session's jokes (default protocol.DefaultJokes).
	Source protocol.JokeSource
	// MaxConns caps concurrent sessions; 0 means unbounded.  Connections
	// beyond the cap are closed immediately.
	MaxConns int
	// IdleTimeout bounds the wait for each client reply; 0 waits forever.
	IdleTimeout time.Duration
	// MaxLineLength bounds inbound lines on TCP sessions.
	MaxLineLength int
	// NewSink builds the event sink for a session (default: LogSink).
	NewSink func(sess *session.Session) protocol.Sink

	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Listener accepts connections and runs one Handler per connection.
// A Listener is single-use: once stopped it cannot listen again.
type Listener struct {
	opts Options

	mu       sync.Mutex
	state    State
	ln       net.Listener
	handlers map[*Handler]struct{}
	loopErr  error
	loopDone chan struct{}

	wg sync.WaitGroup // live handler goroutines
}

// New returns an idle Listener.
func New(opts Options) *Listener {
	if opts.Source == nil {
		opts.Source = protocol.DefaultJokes
	}
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	if opts.NewSink == nil {
		opts.NewSink = func(sess *session.Session) protocol.Sink { return LogSink(sess.Logger) }
	}
	return &Listener{
		opts:     opts,
		handlers: make(map[*Handler]struct{}),
		loopDone: make(chan struct{}),
	}
}

// Start binds addr and runs the accept loop in the background.  A bind
// failure is returned as *errors.BindError and leaves the Listener
// stopped.
func (l *Listener) Start(addr string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateListening:
		return fmt.Errorf("already listening on %s", l.ln.Addr())
	case StateStopped:
		return kkerr.ErrListenerStopped
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		l.state = StateStopped
		close(l.loopDone)
		return &kkerr.BindError{Addr: addr, Err: err}
	}

	l.ln = ln
	l.state = StateListening
	l.opts.Logger.Info("listening on %s", ln.Addr())

	go l.acceptLoop(ln)
	return nil
}

// Stop closes the listening socket, then closes every live session and
// forgets them.  Calling Stop on an idle or stopped Listener is a
// no-op.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.state != StateListening {
		l.mu.Unlock()
		return
	}
	l.state = StateStopped
	l.ln.Close() //nolint:errcheck

	live := make([]*Handler, 0, len(l.handlers))
	for h := range l.handlers {
		live = append(live, h)
	}
	l.handlers = make(map[*Handler]struct{})
	l.mu.Unlock()

	for _, h := range live {
		h.Close() //nolint:errcheck
	}
	l.opts.Logger.Verbose("listener stopped, closed %d live session(s)", len(live))
}

// Wait blocks until the accept loop and every session goroutine have
// returned.  It returns the error that stopped the accept loop, or nil
// after a normal Stop.
func (l *Listener) Wait() error {
	l.mu.Lock()
	if l.state == StateIdle {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	<-l.loopDone
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loopErr
}

// Done is closed once the accept loop has exited.
func (l *Listener) Done() <-chan struct{} { return l.loopDone }

// Adopt runs a session over an already-established connection (for
// example a websocket) under the same rules as accepted connections.
func (l *Listener) Adopt(conn protocol.LineConn) error {
	return l.dispatch(conn)
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Active returns the number of live sessions.
func (l *Listener) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handlers)
}

// State returns the current lifecycle state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// ── internal ─────────────────────────────────────────────────────────

func (l *Listener) acceptLoop(ln net.Listener) {
	defer close(l.loopDone)

	bo := retry.AcceptBackoff()
	for {
		var conn net.Conn
		err := bo.Do(context.Background(), func(attempt int) error {
			c, err := ln.Accept()
			if err == nil {
				conn = c
				return nil
			}
			if l.State() == StateStopped {
				return retry.Permanent(kkerr.ErrAcceptAborted)
			}
			if kkerr.IsTemporary(err) {
				l.opts.Logger.Warn("accept: %v; retrying in %v", err, bo.Delay(attempt))
				return err
			}
			return retry.Permanent(err)
		})

		if kkerr.Is(err, kkerr.ErrAcceptAborted) {
			l.opts.Logger.Debug("accept loop exiting: %v", err)
			return
		}
		if err != nil {
			l.opts.Logger.Error("accept on %s: %v", ln.Addr(), err)
			l.mu.Lock()
			l.loopErr = fmt.Errorf("accept: %w", err)
			l.mu.Unlock()
			l.Stop()
			return
		}

		l.opts.Logger.Verbose("connection from %s", conn.RemoteAddr())
		l.dispatch(protocol.NewConn(conn, l.opts.MaxLineLength)) //nolint:errcheck
	}
}

// dispatch records a Handler for conn in the live set and starts it.
// The connection is closed instead when the Listener is not listening
// or the live set is full.
func (l *Listener) dispatch(conn protocol.LineConn) error {
	sess := session.New(conn, l.opts.Logger)
	h := NewHandler(sess, l.opts.Source.ListJokes(), l.opts.NewSink(sess),
		l.opts.Metrics, l.opts.IdleTimeout)

	l.mu.Lock()
	var reject error
	switch {
	case l.state != StateListening:
		reject = kkerr.ErrListenerStopped
	case l.opts.MaxConns > 0 && len(l.handlers) >= l.opts.MaxConns:
		reject = kkerr.ErrTooManyConnections
	}
	if reject != nil {
		l.mu.Unlock()
		sess.Close() //nolint:errcheck
		l.opts.Metrics.SessionRejected()
		sess.Logger.Warn("rejected: %v", reject)
		return reject
	}
	l.handlers[h] = struct{}{}
	l.wg.Add(1)
	l.mu.Unlock()

	go l.serve(h)
	return nil
}

func (l *Listener) serve(h *Handler) {
	defer l.wg.Done()
	defer l.forget(h)

	if err := h.Run(context.Background()); err != nil {
		h.sess.Logger.Warn("session failed: %v", err)
	}
}

func (l *Listener) forget(h *Handler) {
	l.mu.Lock()
	delete(l.handlers, h)
	l.mu.Unlock()
}
