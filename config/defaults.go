package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// Defaults shared by the CLI flags, the config file and environment
// loading.

const (
	// DefaultPort is the port the server listens on when none is given.
	DefaultPort = 4444

	// DefaultBind listens on every interface.
	DefaultBind = "0.0.0.0"

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout bounds the client's TCP/SSH connect.
	DefaultConnTimeout = 30 * time.Second

	// DefaultIdleTimeout of zero waits for client replies forever.
	DefaultIdleTimeout time.Duration = 0

	// DefaultMaxConns of zero leaves concurrent sessions unbounded.
	DefaultMaxConns = 0

	// DefaultGracePeriod is how long serve mode waits for sessions to
	// exit after closing them.
	DefaultGracePeriod = 5 * time.Second

	// EnvPrefix prefixes every environment variable, e.g.
	// KNOCKKNOCK_MAX_CONNS.
	EnvPrefix = "KNOCKKNOCK"
)
