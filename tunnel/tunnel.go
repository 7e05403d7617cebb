// Package tunnel carries client sessions through an SSH bastion.  The
// bastion both resolves the joke server's name and opens the TCP
// stream, so the client never needs a route to the server itself.
package tunnel

import (
	"context"
	"net"
)

// Tunnel is an encrypted channel through which TCP connections can be
// forwarded.
type Tunnel interface {
	Connect(ctx context.Context) error
	Dial(ctx context.Context, network, address string) (net.Conn, error)
	Close() error
	IsAlive() bool
}

var _ Tunnel = (*SSHTunnel)(nil)
