package web

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	kkerr "knockknock/internal/errors"
	"knockknock/internal/protocol"
)

const (
	writeWait = 10 * time.Second
	closeWait = time.Second
)

// wsConn carries the line protocol over a websocket: one text message
// per line.  It satisfies protocol.LineConn, so a Listener can adopt it
// like any accepted TCP connection.
type wsConn struct {
	ws      *websocket.Conn
	maxLine int
}

func newWSConn(ws *websocket.Conn, maxLine int) *wsConn {
	if maxLine <= 0 {
		maxLine = protocol.DefaultMaxLineLength
	}
	ws.SetReadLimit(int64(maxLine) + 2)
	// The HTTP server's deadlines must not outlive the upgrade.
	ws.SetReadDeadline(time.Time{})  //nolint:errcheck
	ws.SetWriteDeadline(time.Time{}) //nolint:errcheck
	return &wsConn{ws: ws, maxLine: maxLine}
}

func (c *wsConn) ReadLine() (string, error) {
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		switch {
		case errors.Is(err, websocket.ErrReadLimit):
			return "", kkerr.Protocolf("line exceeds %d bytes", c.maxLine)
		case websocket.IsCloseError(err, websocket.CloseNormalClosure,
			websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
			return "", io.EOF
		default:
			return "", err
		}
	}
	if mt != websocket.TextMessage {
		return "", kkerr.Protocolf("unexpected binary message")
	}

	line := strings.TrimSuffix(strings.TrimSuffix(string(data), "\n"), "\r")
	if len(line) > c.maxLine {
		return "", kkerr.Protocolf("line exceeds %d bytes", c.maxLine)
	}
	if err := protocol.ValidateLine(line); err != nil {
		return "", err
	}
	return line, nil
}

func (c *wsConn) WriteLine(line string) error {
	if err := protocol.ValidateLine(line); err != nil {
		return err
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	return c.ws.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *wsConn) SetReadDeadline(t time.Time) error { return c.ws.SetReadDeadline(t) }

func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// Close sends a best-effort close frame, then drops the connection.
func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait)) //nolint:errcheck
	return c.ws.Close()
}
