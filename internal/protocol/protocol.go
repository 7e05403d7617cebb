// Package protocol defines the knock-knock session contract shared by
// the server and the client: the message unit (one text line), the
// terminator, the joke data model and the collaborator interfaces that
// sit on either side of a session.
//
// Turn sequence, server-initiated:
//
//	server → clue      (one per joke, in order)
//	client → reply
//	...
//	server → "Bye"     (after the last joke, or at once when there are none)
//
// A session over N jokes therefore has N rounds and N+1 server lines.
package protocol

import (
	"net"
	"strings"
	"time"
)

// Terminator is the final line of every session.  Receivers recognise
// it by exact value.
const Terminator = "Bye"

// DefaultMaxLineLength bounds a single inbound line in bytes.
const DefaultMaxLineLength = 4096

// Joke is an immutable clue/answer pair.  Answer is the reply the
// server expects the client to give to Clue.
type Joke struct {
	Clue   string `mapstructure:"clue"`
	Answer string `mapstructure:"answer"`
}

// Matches reports whether reply is the expected answer, ignoring case
// and surrounding whitespace.
func (j Joke) Matches(reply string) bool {
	return strings.EqualFold(strings.TrimSpace(reply), strings.TrimSpace(j.Answer))
}

// JokeSource supplies the ordered jokes that seed one session.
type JokeSource interface {
	ListJokes() []Joke
}

// Sink receives the observable events of one session: every inbound
// line, then exactly one end-of-session notice.  An empty message
// means the session ended cleanly.
type Sink interface {
	LineReceived(line string)
	SessionEnded(message string)
}

// LineConn is a connection that exchanges whole text lines.  Every
// WriteLine is flushed before it returns.
type LineConn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	SetReadDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// ── Sinks ────────────────────────────────────────────────────────────

// SinkFuncs adapts plain functions to a Sink.  Nil fields are skipped.
type SinkFuncs struct {
	OnLine func(line string)
	OnEnd  func(message string)
}

func (s SinkFuncs) LineReceived(line string) {
	if s.OnLine != nil {
		s.OnLine(line)
	}
}

func (s SinkFuncs) SessionEnded(message string) {
	if s.OnEnd != nil {
		s.OnEnd(message)
	}
}

// Discard is a Sink that ignores every event.
var Discard Sink = SinkFuncs{}
