package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	kkerr "knockknock/internal/errors"
)

// Conn frames lines over a stream connection: UTF-8 text terminated by
// "\n", with an optional "\r" before it.
type Conn struct {
	conn    net.Conn
	r       *bufio.Reader
	w       *bufio.Writer
	maxLine int
}

// NewConn wraps c.  maxLine ≤ 0 selects DefaultMaxLineLength.
func NewConn(c net.Conn, maxLine int) *Conn {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &Conn{
		conn:    c,
		r:       bufio.NewReaderSize(c, maxLine+2), // room for "\r\n"
		w:       bufio.NewWriter(c),
		maxLine: maxLine,
	}
}

// ReadLine blocks for the next complete line and returns it without its
// terminator.  EOF before any byte of a line yields io.EOF; EOF in the
// middle of a line yields io.ErrUnexpectedEOF.
func (c *Conn) ReadLine() (string, error) {
	raw, err := c.r.ReadSlice('\n')
	if err != nil {
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			return "", kkerr.Protocolf("line exceeds %d bytes", c.maxLine)
		case errors.Is(err, io.EOF) && len(raw) > 0:
			return "", io.ErrUnexpectedEOF
		default:
			return "", err
		}
	}

	raw = bytes.TrimSuffix(raw[:len(raw)-1], []byte("\r"))
	if len(raw) > c.maxLine {
		return "", kkerr.Protocolf("line exceeds %d bytes", c.maxLine)
	}
	if !utf8.Valid(raw) {
		return "", kkerr.Protocolf("line is not valid UTF-8")
	}
	return string(raw), nil
}

// WriteLine sends line followed by "\n" and flushes.  A line that
// would break framing is rejected before anything is written.
func (c *Conn) WriteLine(line string) error {
	if err := ValidateLine(line); err != nil {
		return err
	}
	if _, err := c.w.WriteString(line); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	return c.w.Flush()
}

// SetReadDeadline forwards to the underlying connection.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close closes the underlying connection, unblocking any pending read
// or write.
func (c *Conn) Close() error { return c.conn.Close() }

// ValidateLine reports whether line can be sent as one message.
func ValidateLine(line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return kkerr.Protocolf("line contains a line break")
	}
	if !utf8.ValidString(line) {
		return kkerr.Protocolf("line is not valid UTF-8")
	}
	return nil
}
