// Package core is the orchestration layer.  It composes the server,
// client, transport and web packages into the two things knockknock
// can do, serve jokes or connect to a server, and provides a builder
// that selects the right one from a Config.
//
// Architecture layers (bottom → top):
//
//	protocol  →  session  →  server / client  →  core  →  cmd (CLI)
package core

import "context"

// Mode is a complete operational mode of knockknock.  Each mode owns
// its full lifecycle from startup to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
