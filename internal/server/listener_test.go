package server

import (
	"net"
	"sync"
	"testing"
	"time"

	kkerr "knockknock/internal/errors"
	"knockknock/internal/metrics"
	"knockknock/internal/protocol"
	"knockknock/internal/session"
	"knockknock/util"
)

var testJokes = protocol.StaticSource{
	{Clue: "Knock knock", Answer: "Who's there?"},
	{Clue: "Lettuce", Answer: "Lettuce who?"},
	{Clue: "Lettuce in, it's cold out here!", Answer: "Ha ha"},
}

// recordingSink collects server-side events for assertions.
type recordingSink struct {
	mu    sync.Mutex
	lines []string
	ends  []string
}

func (r *recordingSink) LineReceived(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

func (r *recordingSink) SessionEnded(msg string) {
	r.mu.Lock()
	r.ends = append(r.ends, msg)
	r.mu.Unlock()
}

func (r *recordingSink) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...), append([]string(nil), r.ends...)
}

func startListener(t *testing.T, opts Options) *Listener {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	l := New(opts)
	if err := l.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		l.Stop()
		l.Wait() //nolint:errcheck
	})
	return l
}

func dial(t *testing.T, l *Listener) *protocol.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", l.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c.SetDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	t.Cleanup(func() { c.Close() })
	return protocol.NewConn(c, 0)
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestListener_FullSession(t *testing.T) {
	sink := &recordingSink{}
	m := metrics.New()
	l := startListener(t, Options{
		Source:  testJokes,
		Metrics: m,
		NewSink: func(*session.Session) protocol.Sink { return sink },
	})
	conn := dial(t, l)

	var shown []string
	for {
		line, err := conn.ReadLine()
		if err != nil {
			t.Fatalf("read after %v: %v", shown, err)
		}
		shown = append(shown, line)
		if line == protocol.Terminator {
			break
		}
		// Reply with the expected answer for the clue just shown.
		if err := conn.WriteLine(testJokes[len(shown)-1].Answer); err != nil {
			t.Fatal(err)
		}
	}

	if len(shown) != len(testJokes)+1 {
		t.Fatalf("client saw %d lines, want %d: %v", len(shown), len(testJokes)+1, shown)
	}
	for i, j := range testJokes {
		if shown[i] != j.Clue {
			t.Errorf("line %d = %q, want %q", i, shown[i], j.Clue)
		}
	}

	// The server closes after the terminator.
	if _, err := conn.ReadLine(); err == nil {
		t.Error("expected EOF after terminator")
	}

	eventually(t, "session end", func() bool { _, ends := sink.snapshot(); return len(ends) == 1 })
	lines, ends := sink.snapshot()
	if len(lines) != len(testJokes) {
		t.Errorf("server received %d lines, want %d", len(lines), len(testJokes))
	}
	if ends[0] != "" {
		t.Errorf("clean session ended with %q", ends[0])
	}
	if m.Rounds() != int64(len(testJokes)) {
		t.Errorf("rounds = %d, want %d", m.Rounds(), len(testJokes))
	}
	if snap := m.Snapshot(); snap.AnswersMatched != int64(len(testJokes)) || snap.SessionsCompleted != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestListener_EmptySource(t *testing.T) {
	l := startListener(t, Options{Source: protocol.StaticSource{}})
	conn := dial(t, l)

	line, err := conn.ReadLine()
	if err != nil {
		t.Fatal(err)
	}
	if line != protocol.Terminator {
		t.Errorf("first line = %q, want terminator", line)
	}
	if _, err := conn.ReadLine(); err == nil {
		t.Error("expected EOF after terminator")
	}
}

func TestListener_StopClosesLiveSessions(t *testing.T) {
	const n = 3
	l := startListener(t, Options{Source: testJokes})

	conns := make([]*protocol.Conn, n)
	for i := range conns {
		conns[i] = dial(t, l)
		if _, err := conns[i].ReadLine(); err != nil {
			t.Fatalf("conn %d first clue: %v", i, err)
		}
	}
	if got := l.Active(); got != n {
		t.Fatalf("active = %d, want %d", got, n)
	}

	l.Stop()

	for i, c := range conns {
		if _, err := c.ReadLine(); err == nil {
			t.Errorf("conn %d still open after Stop", i)
		}
	}
	if got := l.Active(); got != 0 {
		t.Errorf("active after Stop = %d", got)
	}
	if l.State() != StateStopped {
		t.Errorf("state = %v", l.State())
	}

	// Second Stop is a no-op.
	l.Stop()

	done := make(chan error, 1)
	go func() { done <- l.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait after Stop: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handlers did not exit after Stop")
	}

	if _, err := net.DialTimeout("tcp", l.Addr().String(), 500*time.Millisecond); err == nil {
		t.Error("listening socket should be closed")
	}
}

func TestListener_BindError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer taken.Close()

	l := New(Options{Logger: util.NewLogger(0)})
	err = l.Start(taken.Addr().String())

	var be *kkerr.BindError
	if !kkerr.As(err, &be) {
		t.Fatalf("expected BindError, got %v", err)
	}
	if l.State() != StateStopped {
		t.Errorf("state = %v, want stopped", l.State())
	}

	l.Stop() // no-op
	if err := l.Wait(); err != nil {
		t.Errorf("Wait: %v", err)
	}
}

func TestListener_StopNeverStarted(t *testing.T) {
	l := New(Options{})
	l.Stop()
	l.Stop()
	if l.State() != StateIdle {
		t.Errorf("state = %v, want idle", l.State())
	}
	if err := l.Wait(); err != nil {
		t.Errorf("Wait: %v", err)
	}
	if l.Addr() != nil {
		t.Error("idle listener has no address")
	}
}

func TestListener_StoppedIsTerminal(t *testing.T) {
	l := startListener(t, Options{})
	l.Stop()
	if err := l.Start("127.0.0.1:0"); !kkerr.Is(err, kkerr.ErrListenerStopped) {
		t.Errorf("restart error = %v, want ErrListenerStopped", err)
	}
}

func TestListener_MaxConns(t *testing.T) {
	m := metrics.New()
	l := startListener(t, Options{Source: testJokes, MaxConns: 1, Metrics: m})

	first := dial(t, l)
	if _, err := first.ReadLine(); err != nil {
		t.Fatal(err)
	}

	second := dial(t, l)
	if line, err := second.ReadLine(); err == nil {
		t.Fatalf("second connection should be rejected, got %q", line)
	}
	eventually(t, "rejection", func() bool { return m.RejectedSessions() == 1 })

	// The first session is unaffected.
	if err := first.WriteLine("Who's there?"); err != nil {
		t.Fatal(err)
	}
	if line, err := first.ReadLine(); err != nil || line != "Lettuce" {
		t.Errorf("first session got %q, %v", line, err)
	}
}

func TestListener_SurvivesFailedSession(t *testing.T) {
	m := metrics.New()
	l := startListener(t, Options{Source: testJokes[:1], Metrics: m})

	broken := dial(t, l)
	if _, err := broken.ReadLine(); err != nil {
		t.Fatal(err)
	}
	broken.Close() // vanish mid-session

	eventually(t, "failed session recorded", func() bool { return m.ErrorCount() == 1 })

	conn := dial(t, l)
	if line, _ := conn.ReadLine(); line != "Knock knock" {
		t.Fatalf("got %q", line)
	}
	if err := conn.WriteLine("Who's there?"); err != nil {
		t.Fatal(err)
	}
	if line, _ := conn.ReadLine(); line != protocol.Terminator {
		t.Errorf("got %q, want terminator", line)
	}
	if l.State() != StateListening {
		t.Errorf("state = %v", l.State())
	}
}

func TestListener_AdoptAfterStop(t *testing.T) {
	l := startListener(t, Options{})
	l.Stop()

	a, b := net.Pipe()
	defer b.Close()
	if err := l.Adopt(protocol.NewConn(a, 0)); !kkerr.Is(err, kkerr.ErrListenerStopped) {
		t.Errorf("Adopt = %v, want ErrListenerStopped", err)
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateIdle: "idle", StateListening: "listening", StateStopped: "stopped", State(9): "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
