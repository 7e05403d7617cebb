package tunnel

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	kkerr "knockknock/internal/errors"
	"knockknock/util"
)

// SSHConfig names the bastion and how to authenticate to it.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration
}

func (c *SSHConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SSHTunnel forwards streams through one SSH connection; each Dial is a
// direct-tcpip channel.
type SSHTunnel struct {
	cfg *SSHConfig
	log *util.Logger

	mu     sync.RWMutex
	client *ssh.Client // nil when down
}

// NewSSHTunnel applies defaults to cfg (port 22, 30s handshake) and
// returns a tunnel that is not yet connected.
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = util.NewLogger(0)
	}
	return &SSHTunnel{cfg: cfg, log: logger.With("ssh")}
}

// Connect opens the TCP connection to the bastion and authenticates.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	c := t.cfg
	clientCfg, err := t.clientConfig()
	if err != nil {
		return err
	}

	addr := c.Addr()
	t.log.Debug("connecting to %s as %q", addr, c.User)
	raw, err := (&net.Dialer{Timeout: c.ConnTimeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return &kkerr.ConnectError{Addr: addr, Err: err}
	}
	sc, chans, reqs, err := ssh.NewClientConn(raw, addr, clientCfg)
	if err != nil {
		raw.Close()
		return kkerr.WrapSSH("handshake", c.Host, c.Port, err)
	}

	client := ssh.NewClient(sc, chans, reqs)
	t.mu.Lock()
	t.client = client
	t.mu.Unlock()
	go t.watch(client)
	return nil
}

func (t *SSHTunnel) clientConfig() (*ssh.ClientConfig, error) {
	c := t.cfg
	auth, err := BuildAuthMethods(c)
	if err != nil {
		return nil, kkerr.WrapSSH("auth", c.Host, c.Port, err)
	}
	hostKey, err := hostKeyCallback(c)
	if err != nil {
		return nil, kkerr.WrapSSH("hostkey", c.Host, c.Port, err)
	}
	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         c.ConnTimeout,
	}, nil
}

// Dial opens a stream to address from the bastion's side of the
// network, so the bastion resolves the name.
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	t.mu.RLock()
	client := t.client
	t.mu.RUnlock()
	if client == nil {
		return nil, kkerr.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.log.Debug("open %s channel to %s", network, address)
	conn, err := client.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("via %s: %w", t.cfg.Addr(), err)
	}
	return conn, nil
}

// Close tears down the connection and every stream riding on it.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.client != nil
}

// watch marks the tunnel down when the bastion drops the connection.
func (t *SSHTunnel) watch(client *ssh.Client) {
	err := client.Wait()
	t.mu.Lock()
	if t.client == client {
		t.client = nil
	}
	t.mu.Unlock()
	t.log.Debug("bastion connection ended: %v", err)
}
