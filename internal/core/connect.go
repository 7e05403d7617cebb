package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"

	"knockknock/internal/client"
	kkerr "knockknock/internal/errors"
	"knockknock/internal/protocol"
	"knockknock/internal/transport"
	"knockknock/util"
)

// ConnectMode plays one session against a server: server lines go to
// Stdout, replies are read from Stdin one line per clue.
type ConnectMode struct {
	Dialer        transport.Dialer
	Host          string
	Port          int
	MaxLineLength int
	Logger        *util.Logger

	// Stdin/Stdout/Stderr default to the process streams when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

func (m *ConnectMode) stderr() io.Writer {
	if m.Stderr != nil {
		return m.Stderr
	}
	return os.Stderr
}

// Run connects, then converses until the server says goodbye, stdin
// runs dry or ctx is cancelled.  A failure has already been printed to
// Stderr when Run returns it.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	in := m.stdin()
	display := &terminal{
		out:     m.stdout(),
		errOut:  m.stderr(),
		prompt:  isTerminal(in),
		prompts: make(chan struct{}, 1),
	}
	sess := client.New(client.Options{
		Dialer:        m.Dialer,
		Sink:          display,
		MaxLineLength: m.MaxLineLength,
		Logger:        m.Logger,
	})

	if err := sess.Connect(ctx, m.Host, m.Port); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return kkerr.Reported(err)
	}

	done := make(chan struct{})
	defer close(done)
	go feed(in, display.prompts, done, sess)

	return kkerr.Reported(sess.Run(ctx))
}

// feed reads one stdin line per server prompt, so piped replies are
// not coalesced by the session's last-write-wins hand-off.
func feed(r io.Reader, prompts <-chan struct{}, done <-chan struct{}, sess *client.Session) {
	sc := bufio.NewScanner(r)
	for {
		select {
		case <-prompts:
		case <-done:
			return
		}
		if !sc.Scan() {
			sess.EndInput()
			return
		}
		sess.Submit(sc.Text())
	}
}

// terminal is the client's display: server lines on out, the closing
// diagnostic on errOut.
type terminal struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	prompt  bool
	prompts chan struct{}
}

func (t *terminal) LineReceived(line string) {
	t.mu.Lock()
	fmt.Fprintln(t.out, line)
	if line != protocol.Terminator && t.prompt {
		fmt.Fprint(t.out, "> ")
	}
	t.mu.Unlock()

	if line != protocol.Terminator {
		select {
		case t.prompts <- struct{}{}:
		default:
		}
	}
}

func (t *terminal) SessionEnded(msg string) {
	if msg == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.errOut, msg)
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
