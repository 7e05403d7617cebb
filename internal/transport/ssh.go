package transport

import (
	"context"
	"net"
	"sync"

	"knockknock/tunnel"
	"knockknock/util"
)

// SSHDialer opens client connections through an SSH bastion.  The
// bastion session is opened on the first Dial and reopened if it has
// dropped since.
type SSHDialer struct {
	cfg *tunnel.SSHConfig
	log *util.Logger

	mu  sync.Mutex
	tun *tunnel.SSHTunnel // nil until the first Dial
}

// NewSSHDialer returns a dialer for the bastion described by cfg.
// Nothing touches the network until Dial.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{cfg: cfg, log: logger}
}

// Dial asks the bastion to connect to address.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	tun, err := d.bastion(ctx)
	if err != nil {
		return nil, err
	}
	return tun.Dial(ctx, network, address)
}

// ResolvesRemotely is true: the bastion resolves the server's name.
func (d *SSHDialer) ResolvesRemotely() bool { return true }

// Close ends the bastion session, if one is open.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tun == nil {
		return nil
	}
	err := d.tun.Close()
	d.tun = nil
	return err
}

func (d *SSHDialer) bastion(ctx context.Context) (*tunnel.SSHTunnel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tun != nil && d.tun.IsAlive() {
		return d.tun, nil
	}

	tun := tunnel.NewSSHTunnel(d.cfg, d.log)
	d.log.Verbose("opening SSH session to %s@%s", d.cfg.User, d.cfg.Addr())
	if err := tun.Connect(ctx); err != nil {
		return nil, err
	}
	d.tun = tun
	return tun, nil
}
