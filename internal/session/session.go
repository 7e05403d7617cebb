// Package session represents a single connection lifecycle, binding a
// line connection with an identity and a scoped logger.
//
// Both the server's connection handler and the client use a Session,
// so read/write failures are wrapped the same way on either side and
// closing is idempotent no matter who closes first.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	kkerr "knockknock/internal/errors"
	"knockknock/internal/protocol"
	"knockknock/util"
)

// Session encapsulates the runtime state of a single connection.
type Session struct {
	ID     string
	Conn   protocol.LineConn
	Logger *util.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a Session with a fresh id.  The logger is scoped to the
// id and the peer address.
func New(conn protocol.LineConn, logger *util.Logger) *Session {
	id := uuid.NewString()
	scope := id[:8]
	if ra := conn.RemoteAddr(); ra != nil {
		scope += " " + ra.String()
	}
	return &Session{
		ID:     id,
		Conn:   conn,
		Logger: logger.With(scope),
	}
}

// ReadLine reads one line, wrapping failures as SessionIOError.
func (s *Session) ReadLine() (string, error) {
	line, err := s.Conn.ReadLine()
	if err != nil {
		return "", kkerr.WrapIO("read", s.ID, err)
	}
	s.Logger.Debug("<- %q", line)
	return line, nil
}

// WriteLine writes and flushes one line, wrapping failures as
// SessionIOError.
func (s *Session) WriteLine(line string) error {
	if err := s.Conn.WriteLine(line); err != nil {
		return kkerr.WrapIO("write", s.ID, err)
	}
	s.Logger.Debug("-> %q", line)
	return nil
}

// Close closes the connection once.  Later calls return the first
// result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.Conn.Close()
	})
	return s.closeErr
}

// Closed reports whether Close has been called.  A failure observed
// after Close is the expected result of shutdown.
func (s *Session) Closed() bool { return s.closed.Load() }
