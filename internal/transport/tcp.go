package transport

import (
	"context"
	"net"
	"time"
)

// TCPDialer connects straight to the joke server.  The zero value is
// ready to use.
type TCPDialer struct {
	Timeout   time.Duration // 0 leaves it to the OS
	KeepAlive time.Duration // 0 uses the net default, negative turns it off
}

func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	nd := &net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	return nd.DialContext(ctx, network, address)
}

// Close holds nothing to release.
func (*TCPDialer) Close() error { return nil }
