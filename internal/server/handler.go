package server

import (
	"context"
	"time"

	"knockknock/internal/metrics"
	"knockknock/internal/protocol"
	"knockknock/internal/session"
)

// Handler drives the server side of one session: it owns the session's
// connection from accept until the terminator is sent or I/O fails.
type Handler struct {
	sess        *session.Session
	jokes       []protocol.Joke
	sink        protocol.Sink
	metrics     *metrics.Collector
	idleTimeout time.Duration
}

// NewHandler returns a Handler that will tell jokes over sess.  A nil
// sink discards events; a nil collector disables metrics.
func NewHandler(sess *session.Session, jokes []protocol.Joke, sink protocol.Sink,
	m *metrics.Collector, idleTimeout time.Duration) *Handler {
	if sink == nil {
		sink = protocol.Discard
	}
	return &Handler{
		sess:        sess,
		jokes:       jokes,
		sink:        sink,
		metrics:     m,
		idleTimeout: idleTimeout,
	}
}

// Run plays every joke and then the terminator, and always closes the
// connection before returning.  It returns nil when the session
// completed or was closed from outside (Close or ctx), and the
// terminal SessionIOError / ProtocolError otherwise.
func (h *Handler) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { h.sess.Close() }) //nolint:errcheck
	defer stop()

	h.metrics.SessionOpened()
	err := h.play()
	closedByOwner := err != nil && h.sess.Closed()
	h.sess.Close() //nolint:errcheck
	h.metrics.SessionClosed(err == nil)

	switch {
	case err == nil:
		h.sess.Logger.Verbose("session complete (%d rounds)", len(h.jokes))
		h.sink.SessionEnded("")
		return nil
	case closedByOwner:
		h.sess.Logger.Verbose("session closed by shutdown")
		h.sink.SessionEnded("")
		return nil
	default:
		h.metrics.RecordError(err.Error())
		h.sink.SessionEnded(err.Error())
		return err
	}
}

// Close closes the connection, unblocking a pending read or write.
// Safe to call more than once and concurrently with Run.
func (h *Handler) Close() error { return h.sess.Close() }

func (h *Handler) play() error {
	for i, joke := range h.jokes {
		if err := h.send(joke.Clue); err != nil {
			return err
		}
		reply, err := h.receive()
		if err != nil {
			return err
		}

		matched := joke.Matches(reply)
		h.metrics.RoundCompleted(matched)
		h.sess.Logger.Verbose("round %d/%d: got %q, expected %q", i+1, len(h.jokes), reply, joke.Answer)
	}
	return h.send(protocol.Terminator)
}

func (h *Handler) send(line string) error {
	if err := h.sess.WriteLine(line); err != nil {
		return err
	}
	h.metrics.LineSent()
	return nil
}

func (h *Handler) receive() (string, error) {
	if h.idleTimeout > 0 {
		h.sess.Conn.SetReadDeadline(time.Now().Add(h.idleTimeout)) //nolint:errcheck
	}
	line, err := h.sess.ReadLine()
	if err != nil {
		return "", err
	}
	h.metrics.LineReceived()
	h.sink.LineReceived(line)
	return line, nil
}
