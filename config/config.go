// Package config defines the runtime configuration for knockknock and
// the helpers that turn flags, environment and an optional config file
// into one validated Config.
package config

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"knockknock/internal/protocol"
)

// Mode selects what the process does.
type Mode int

const (
	ModeServe Mode = iota + 1
	ModeConnect
)

func (m Mode) String() string {
	switch m {
	case ModeServe:
		return "serve"
	case ModeConnect:
		return "connect"
	default:
		return "unset"
	}
}

// Config holds every tuneable for one knockknock run.
type Config struct {
	Mode Mode

	// ── Serve ────────────────────────────────────────────────────────
	Bind          string
	MaxConns      int
	IdleTimeout   time.Duration
	MaxLineLength int
	Web           string          // host:port for the HTTP gateway, "" disables it
	Jokes         []protocol.Joke // from the config file; empty serves the defaults

	// ── Connect ──────────────────────────────────────────────────────
	Host    string
	Timeout time.Duration

	// Port is the listening port in serve mode and the server's port in
	// connect mode.
	Port int

	// ── SSH tunnel (connect only) ────────────────────────────────────
	TunnelSpec     string // raw [user@]host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Output ───────────────────────────────────────────────────────
	Verbose    int
	ConfigFile string
	Version    string // set by the CLI, reported by the web gateway
}

// ListenAddr returns the serve-mode bind address.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// JokeSource returns the configured jokes, or the built-in set when
// none were configured.
func (c *Config) JokeSource() protocol.JokeSource {
	if len(c.Jokes) == 0 {
		return protocol.DefaultJokes
	}
	return protocol.StaticSource(c.Jokes)
}

// ── Port helpers ─────────────────────────────────────────────────────

// ParsePort accepts a decimal port in 1-65535.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if err := checkPort(port); err != nil {
		return 0, err
	}
	return port, nil
}

func checkPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", port)
	}
	return nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q; expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || checkPort(port) != nil {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ApplyTunnelSpec fills the Tunnel* fields from TunnelSpec.  An empty
// spec disables the tunnel.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		c.TunnelEnabled = false
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.MaxLineLength < 0 {
		return fmt.Errorf("--max-line must not be negative")
	}

	switch c.Mode {
	case ModeServe:
		if err := checkPort(c.Port); err != nil {
			return err
		}
		if c.MaxConns < 0 {
			return fmt.Errorf("--max-conns must not be negative")
		}
		if c.IdleTimeout < 0 {
			return fmt.Errorf("--idle-timeout must not be negative")
		}
		if c.Web != "" {
			if _, _, err := net.SplitHostPort(c.Web); err != nil {
				return fmt.Errorf("--web %q: %w", c.Web, err)
			}
		}
		if c.TunnelEnabled {
			return fmt.Errorf("SSH tunnels apply to connect mode only")
		}
		for i, j := range c.Jokes {
			if strings.TrimSpace(j.Clue) == "" || strings.TrimSpace(j.Answer) == "" {
				return fmt.Errorf("joke %d needs both a clue and an answer", i+1)
			}
			if err := protocol.ValidateLine(j.Clue); err != nil {
				return fmt.Errorf("joke %d clue: %w", i+1, err)
			}
			if j.Clue == protocol.Terminator {
				return fmt.Errorf("joke %d clue must not be %q", i+1, protocol.Terminator)
			}
		}

	case ModeConnect:
		if c.Host == "" {
			return fmt.Errorf("hostname is required")
		}
		if err := checkPort(c.Port); err != nil {
			return err
		}
		if c.Timeout < 0 {
			return fmt.Errorf("--timeout must not be negative")
		}
		if c.TunnelEnabled && c.TunnelHost == "" {
			return fmt.Errorf("tunnel host is required")
		}

	default:
		return fmt.Errorf("no mode selected")
	}
	return nil
}
