// Package client implements the knock-knock client: connect to a
// server, show each line it sends, answer with the user's input and
// stop at the terminator.
package client

import (
	"context"
	"net"
	"sync"

	kkerr "knockknock/internal/errors"
	"knockknock/internal/protocol"
	"knockknock/internal/session"
	"knockknock/internal/transport"
	"knockknock/util"
)

// Options configures a client Session.
type Options struct {
	// Dialer opens the connection (default: plain TCP).
	Dialer transport.Dialer
	// Sink receives every server line and the end-of-session notice.
	Sink protocol.Sink
	// MaxLineLength bounds inbound lines.
	MaxLineLength int

	Logger *util.Logger
}

// Session is one client conversation with a server.  It is single-use:
// Connect once, Run once, then it is done.
//
// Input arrives asynchronously through Submit.  Only the most recent
// unconsumed value is kept.
type Session struct {
	opts Options

	mu         sync.Mutex
	connecting bool
	running    bool
	sess       *session.Session
	addr       string // host:port of sess

	inputMu   sync.Mutex
	input     chan string
	inputDone chan struct{}
	inputOnce sync.Once

	done     chan struct{}
	doneOnce sync.Once
	endOnce  sync.Once
}

// New returns an unconnected Session.
func New(opts Options) *Session {
	if opts.Dialer == nil {
		opts.Dialer = &transport.TCPDialer{}
	}
	if opts.Sink == nil {
		opts.Sink = protocol.Discard
	}
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	return &Session{
		opts:      opts,
		input:     make(chan string, 1),
		inputDone: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Connect resolves host and opens a connection to host:port.  Host
// names are resolved locally unless the dialer resolves them on the far
// side.  Failures are returned as *errors.HostUnresolvedError or
// *errors.ConnectError and reported to the sink; there is no retry.
func (s *Session) Connect(ctx context.Context, host string, port int) error {
	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return kkerr.ErrAlreadyConnected
	}
	s.connecting = true
	s.mu.Unlock()

	addr := util.FormatAddr(host, port)
	if s.disconnected() {
		return s.fail(ctx, &kkerr.ConnectError{Addr: addr, Err: net.ErrClosed})
	}

	if !transport.ResolvesRemotely(s.opts.Dialer) {
		if _, err := util.LookupHost(ctx, host); err != nil {
			return s.fail(ctx, &kkerr.HostUnresolvedError{Host: host, Err: err})
		}
	}

	s.opts.Logger.Verbose("connecting to %s", addr)
	conn, err := s.opts.Dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		var dnsErr *net.DNSError
		if kkerr.As(err, &dnsErr) && dnsErr.IsNotFound {
			return s.fail(ctx, &kkerr.HostUnresolvedError{Host: host, Err: err})
		}
		return s.fail(ctx, &kkerr.ConnectError{Addr: addr, Err: err})
	}

	sess := session.New(protocol.NewConn(conn, s.opts.MaxLineLength), s.opts.Logger)
	s.mu.Lock()
	s.sess, s.addr = sess, addr
	s.mu.Unlock()

	// A Disconnect that raced the dial still wins.
	if s.disconnected() {
		sess.Close() //nolint:errcheck
	}
	sess.Logger.Verbose("connected")
	return nil
}

// Run reads server lines until the terminator, answering each with the
// next submitted input.  The connection is closed and the sink told
// exactly once when Run returns.  Disconnect, EndInput and ctx
// cancellation end the session cleanly with a nil error.  A read or
// write failure is a *errors.SessionIOError carrying the dialed address.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	sess, addr := s.sess, s.addr
	if sess == nil {
		s.mu.Unlock()
		return kkerr.ErrNotConnected
	}
	if s.running {
		s.mu.Unlock()
		return kkerr.New("session is already running")
	}
	s.running = true
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, s.Disconnect)
	defer stop()

	err := s.converse(sess)
	sess.Close() //nolint:errcheck

	switch {
	case err == nil:
		sess.Logger.Verbose("server said %s", protocol.Terminator)
	case s.disconnected():
		sess.Logger.Verbose("disconnected")
		err = nil
	case kkerr.Is(err, kkerr.ErrInputClosed):
		sess.Logger.Verbose("input exhausted, leaving")
		err = nil
	default:
		err = kkerr.AtAddr(err, addr)
		sess.Logger.Debug("session failed: %v", err)
	}
	s.end(err)
	return err
}

// Submit hands text to the session as the next reply, replacing any
// value not yet consumed.
func (s *Session) Submit(text string) {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	select {
	case <-s.input:
	default:
	}
	s.input <- text
}

// EndInput marks the input source exhausted.  A session waiting for a
// reply with nothing pending then ends cleanly.
func (s *Session) EndInput() {
	s.inputOnce.Do(func() { close(s.inputDone) })
}

// Disconnect closes the connection if one is open and wakes any waiter.
// It is safe to call at any time and more than once.
func (s *Session) Disconnect() {
	s.doneOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess != nil {
		sess.Close() //nolint:errcheck
	}
}

func (s *Session) converse(sess *session.Session) error {
	for {
		line, err := sess.ReadLine()
		if err != nil {
			return err
		}
		s.opts.Sink.LineReceived(line)
		if line == protocol.Terminator {
			return nil
		}

		reply, err := s.awaitInput()
		if err != nil {
			return err
		}
		if err := sess.WriteLine(reply); err != nil {
			return err
		}
	}
}

func (s *Session) awaitInput() (string, error) {
	select {
	case text := <-s.input:
		return text, nil
	case <-s.done:
		return "", net.ErrClosed
	case <-s.inputDone:
		select {
		case text := <-s.input:
			return text, nil
		default:
			return "", kkerr.ErrInputClosed
		}
	}
}

func (s *Session) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		s.end(nil)
		return ctx.Err()
	}
	s.opts.Logger.Debug("connect failed: %v", err)
	s.end(err)
	return err
}

func (s *Session) end(err error) {
	s.endOnce.Do(func() { s.opts.Sink.SessionEnded(kkerr.Describe(err)) })
}

func (s *Session) disconnected() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
