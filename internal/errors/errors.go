// Package errors provides domain-specific error types for knockknock.
//
// These types carry structured context (operation, address, session)
// that lets the listener tell a shutdown apart from a genuine failure
// and lets the client turn any terminal condition into one readable
// status line.
package errors

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrAcceptAborted      = errors.New("accept aborted by shutdown")
	ErrListenerStopped    = errors.New("listener is stopped")
	ErrTooManyConnections = errors.New("connection limit reached")
	ErrNotConnected       = errors.New("not connected")
	ErrAlreadyConnected   = errors.New("already connected")
	ErrInputClosed        = errors.New("input source closed")
)

// ── Structured error types ───────────────────────────────────────────

// BindError reports that the listening socket could not be created.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("could not listen on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// HostUnresolvedError reports that the server host name did not resolve.
type HostUnresolvedError struct {
	Host string
	Err  error
}

func (e *HostUnresolvedError) Error() string {
	return fmt.Sprintf("unknown host %s: %v", e.Host, e.Err)
}

func (e *HostUnresolvedError) Unwrap() error { return e.Err }

// ConnectError reports an I/O failure while opening a client session.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SessionIOError represents a read or write failure in the middle of a
// session.  It is terminal for that session only.
type SessionIOError struct {
	Op      string // "read", "write"
	Session string // session id
	Addr    string // dialed host:port, client side only
	Err     error
}

func (e *SessionIOError) Error() string {
	return fmt.Sprintf("session %s: %s: %v", e.Session, e.Op, e.Err)
}

func (e *SessionIOError) Unwrap() error { return e.Err }

// ProtocolError reports a message that does not fit the line protocol.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "protocol error: " + e.Reason }

// SSHError represents an SSH-specific failure with bastion context.
type SSHError struct {
	Op   string // "auth", "hostkey", "handshake"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ReportedError marks a failure the user has already been shown.  The
// process still exits non-zero but prints nothing more.
type ReportedError struct {
	Err error
}

func (e *ReportedError) Error() string { return e.Err.Error() }

func (e *ReportedError) Unwrap() error { return e.Err }

// Reported wraps err as already shown.  A nil err stays nil.
func Reported(err error) error {
	if err == nil {
		return nil
	}
	return &ReportedError{Err: err}
}

// ── Constructors ─────────────────────────────────────────────────────

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// Protocolf builds a ProtocolError from a format string.
func Protocolf(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// WrapIO creates a SessionIOError unless err is already a protocol
// error, which is passed through untouched.
func WrapIO(op, session string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return err
	}
	return &SessionIOError{Op: op, Session: session, Err: err}
}

// AtAddr records addr as the dialed address of the SessionIOError in
// err's chain and returns that error.  Other errors pass through.
func AtAddr(err error, addr string) error {
	var se *SessionIOError
	if !errors.As(err, &se) {
		return err
	}
	at := *se
	at.Addr = addr
	return &at
}

// ── Classification helpers ───────────────────────────────────────────

// IsClosed reports whether err is the expected result of a peer or a
// local Close: EOF, a closed network connection or a reset.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}

// IsTemporary reports whether err is a transient accept/dial condition
// worth retrying (for example EMFILE or ECONNABORTED).
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	return false
}

// Describe turns a terminal client error into the status line shown to
// the user.  A nil error describes a clean shutdown and yields "".
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var (
		hu *HostUnresolvedError
		ce *ConnectError
		pe *ProtocolError
		se *SessionIOError
	)
	switch {
	case errors.As(err, &hu):
		return "Don't know about host " + hu.Host
	case errors.As(err, &ce):
		return "Couldn't get I/O for the connection to " + ce.Addr
	case errors.As(err, &pe):
		return "Protocol error: " + pe.Reason
	case errors.As(err, &se):
		if se.Addr != "" {
			return "Couldn't get I/O for the connection to " + se.Addr
		}
		if IsClosed(se.Err) {
			return "Connection closed by server"
		}
		return "Couldn't get I/O for the connection: " + se.Err.Error()
	default:
		return err.Error()
	}
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use knockknock/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
