package core

import (
	"fmt"

	"knockknock/config"
	"knockknock/internal/metrics"
	"knockknock/internal/server"
	"knockknock/internal/transport"
	"knockknock/tunnel"
	"knockknock/util"
)

// Build constructs the Mode selected by cfg.Mode.  cfg should already
// be validated.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	switch cfg.Mode {
	case config.ModeServe:
		return buildServe(cfg, logger), nil
	case config.ModeConnect:
		return buildConnect(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown mode %v", cfg.Mode)
	}
}

// ── mode builders ────────────────────────────────────────────────────

func buildServe(cfg *config.Config, logger *util.Logger) *ServeMode {
	return &ServeMode{
		Address: cfg.ListenAddr(),
		Web:     cfg.Web,
		Server: server.Options{
			Source:        cfg.JokeSource(),
			MaxConns:      cfg.MaxConns,
			IdleTimeout:   cfg.IdleTimeout,
			MaxLineLength: cfg.MaxLineLength,
			Logger:        logger,
			Metrics:       metrics.New(),
		},
		Version:     cfg.Version,
		GracePeriod: config.DefaultGracePeriod,
		Logger:      logger,
	}
}

func buildConnect(cfg *config.Config, logger *util.Logger) *ConnectMode {
	return &ConnectMode{
		Dialer:        buildDialer(cfg, logger),
		Host:          cfg.Host,
		Port:          cfg.Port,
		MaxLineLength: cfg.MaxLineLength,
		Logger:        logger,
	}
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.Timeout,
		}, logger)
	}
	return &transport.TCPDialer{Timeout: cfg.Timeout}
}
