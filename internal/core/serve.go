package core

import (
	"context"
	"time"

	kkerr "knockknock/internal/errors"
	"knockknock/internal/server"
	"knockknock/internal/web"
	"knockknock/util"
)

// ServeMode runs a Listener until ctx is cancelled, optionally with the
// HTTP gateway in front of it.
type ServeMode struct {
	Address string // host:port for the line protocol
	Web     string // host:port for the gateway, "" disables it
	Server  server.Options
	Version string

	// GracePeriod bounds the wait for sessions after Stop (0 waits
	// forever).
	GracePeriod time.Duration
	Logger      *util.Logger
}

// Run starts listening and blocks until ctx is done, the accept loop
// fails or the gateway cannot serve.  Live sessions are closed on the
// way out.
func (m *ServeMode) Run(ctx context.Context) error {
	l := server.New(m.Server)
	if err := l.Start(m.Address); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	webErr := make(chan error, 1)
	if m.Web != "" {
		g := web.New(web.Options{
			Listener:      l,
			Metrics:       m.Server.Metrics,
			Version:       m.Version,
			MaxLineLength: m.Server.MaxLineLength,
			Logger:        m.Logger,
		})
		go func() { webErr <- g.Run(ctx, m.Web) }()
	}

	var err error
	select {
	case <-ctx.Done():
		m.Logger.Verbose("shutting down")
	case <-l.Done():
	case err = <-webErr:
		m.Logger.Error("gateway: %v", err)
	}

	l.Stop()
	cancel()

	err = kkerr.Join(err, m.wait(l))
	if c := m.Server.Metrics; c != nil {
		m.Logger.Verbose("served %d session(s), %d rejected, %d failed",
			c.TotalSessions(), c.RejectedSessions(), c.ErrorCount())
	}
	return err
}

func (m *ServeMode) wait(l *server.Listener) error {
	done := make(chan error, 1)
	go func() { done <- l.Wait() }()

	if m.GracePeriod <= 0 {
		return <-done
	}
	select {
	case err := <-done:
		return err
	case <-time.After(m.GracePeriod):
		m.Logger.Warn("sessions still running after %v; exiting anyway", m.GracePeriod)
		return nil
	}
}
