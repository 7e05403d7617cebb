// Package transport provides abstractions for opening the client's
// connection to a knockknock server, either directly over TCP or
// through an SSH bastion.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}

// RemoteResolver is implemented by dialers that resolve host names on
// the far side (an SSH bastion), so the client must not require the
// name to resolve locally.
type RemoteResolver interface {
	ResolvesRemotely() bool
}

// ResolvesRemotely reports whether d resolves names on the far side.
func ResolvesRemotely(d Dialer) bool {
	rr, ok := d.(RemoteResolver)
	return ok && rr.ResolvesRemotely()
}
