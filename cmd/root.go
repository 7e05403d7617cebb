// Package cmd wires up the cobra command tree and dispatches to the
// core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"knockknock/config"
	"knockknock/internal/core"
	"knockknock/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X knockknock/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the selected subcommand.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(&config.Config{Version: version}, config.NewViper())
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// options that only steer the CLI itself.
type cliFlags struct {
	dryRun bool
}

func newRootCmd(cfg *config.Config, v *viper.Viper) *cobra.Command {
	var cli cliFlags

	root := &cobra.Command{
		Use:   "knockknock",
		Short: "Tell knock-knock jokes over TCP, or listen to them.",
		Long: `knockknock serves knock-knock jokes over a line-based TCP protocol and
connects to such a server as an interactive client.

Examples:
  knockknock serve -p 4444                     Serve the built-in jokes
  knockknock serve --web 127.0.0.1:8080        Also serve /ws, /metrics, /qr
  knockknock connect localhost 4444            Play a session
  knockknock connect -T ops@bastion jokes 4444 Play through an SSH bastion`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := root.PersistentFlags()
	pf.SetNormalizeFunc(normalize)
	pf.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable) (env: KNOCKKNOCK_VERBOSE)")
	pf.StringVar(&cfg.ConfigFile, "config", "", "Config file (yaml, toml, json, ...) (env: KNOCKKNOCK_CONFIG)")
	pf.IntVar(&cfg.MaxLineLength, "max-line", 0, "Longest accepted line in bytes, 0 for 4096 (env: KNOCKKNOCK_MAX_LINE)")
	pf.BoolVar(&cli.dryRun, "dry-run", false, "Validate the configuration and exit")

	root.AddCommand(newServeCmd(cfg, v, &cli), newConnectCmd(cfg, v, &cli))

	root.CompletionOptions.HiddenDefaultCmd = true
	root.SetHelpCommand(&cobra.Command{Hidden: true})
	root.SetVersionTemplate("knockknock v{{.Version}}\n")
	return root
}

func newServeCmd(cfg *config.Config, v *viper.Viper, cli *cliFlags) *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve knock-knock jokes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.Mode = config.ModeServe
			return run(cmd, cfg, v, cli)
		},
	}

	fs := c.Flags()
	fs.SetNormalizeFunc(normalize)
	fs.IntVarP(&cfg.Port, "port", "p", config.DefaultPort, "Port to listen on (env: KNOCKKNOCK_PORT)")
	fs.StringVarP(&cfg.Bind, "bind", "b", config.DefaultBind, "Address to bind to (env: KNOCKKNOCK_BIND)")
	fs.IntVar(&cfg.MaxConns, "max-conns", config.DefaultMaxConns, "Concurrent session limit, 0 for none (env: KNOCKKNOCK_MAX_CONNS)")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", config.DefaultIdleTimeout, "Drop clients silent this long, 0 to wait forever (env: KNOCKKNOCK_IDLE_TIMEOUT)")
	fs.StringVar(&cfg.Web, "web", "", "Serve the HTTP gateway on host:port (env: KNOCKKNOCK_WEB)")
	return c
}

func newConnectCmd(cfg *config.Config, v *viper.Viper, cli *cliFlags) *cobra.Command {
	c := &cobra.Command{
		Use:   "connect <host> <port>",
		Short: "Connect to a knockknock server and answer its jokes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := config.ParsePort(args[1])
			if err != nil {
				return err
			}
			cfg.Mode = config.ModeConnect
			cfg.Host = args[0]
			cfg.Port = port
			return run(cmd, cfg, v, cli)
		},
	}

	fs := c.Flags()
	fs.SetNormalizeFunc(normalize)
	fs.DurationVarP(&cfg.Timeout, "timeout", "w", config.DefaultConnTimeout, "Connect timeout (env: KNOCKKNOCK_TIMEOUT)")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", "", "Connect through an SSH bastion [user@]host[:port] (env: KNOCKKNOCK_TUNNEL)")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", "", "SSH private key file (env: KNOCKKNOCK_SSH_KEY)")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", false, "Prompt for the SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", false, "Use the SSH agent (env: KNOCKKNOCK_SSH_AGENT)")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", false, "Verify the bastion's host key (env: KNOCKKNOCK_STRICT_HOSTKEY)")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", "", "Custom known_hosts path (env: KNOCKKNOCK_KNOWN_HOSTS)")
	return c
}

// run merges the environment and config file into cfg, validates it
// and runs the selected mode.
func run(cmd *cobra.Command, cfg *config.Config, v *viper.Viper, cli *cliFlags) error {
	if err := config.Load(v, cmd.Flags(), cfg); err != nil {
		return err
	}
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := util.NewLogger(cfg.Verbose)
	if cfg.ConfigFile != "" {
		logger.Verbose("loaded %s", cfg.ConfigFile)
	}

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	if cli.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: configuration OK\n", cfg.Mode)
		return nil
	}
	return mode.Run(cmd.Context())
}

func normalize(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}
