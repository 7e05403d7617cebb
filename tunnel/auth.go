package tunnel

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

var errNoCredentials = errors.New("no SSH credentials found; use --ssh-key, --ssh-agent or --ssh-password")

// BuildAuthMethods collects what the client offers the bastion.  Each
// credential the user asked for must load; the order is key, agent,
// password.  Asking for nothing means "whatever is lying around": a
// running agent and the standard keys in ~/.ssh, skipping any that fail.
func BuildAuthMethods(cfg *SSHConfig) ([]ssh.AuthMethod, error) {
	type source struct {
		wanted bool
		label  string
		load   func() (ssh.AuthMethod, error)
	}
	sources := []source{
		{cfg.KeyPath != "", "key " + cfg.KeyPath, func() (ssh.AuthMethod, error) { return loadKey(cfg.KeyPath) }},
		{cfg.UseAgent, "ssh-agent", dialAgent},
		{cfg.PromptPass, "password", func() (ssh.AuthMethod, error) {
			who := cfg.User + "@" + cfg.Host
			return ssh.PasswordCallback(func() (string, error) {
				b, err := promptHidden("Password for " + who + ": ")
				return string(b), err
			}), nil
		}},
	}

	var out []ssh.AuthMethod
	for _, s := range sources {
		if !s.wanted {
			continue
		}
		m, err := s.load()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.label, err)
		}
		out = append(out, m)
	}
	if len(out) > 0 {
		return out, nil
	}

	if out = ambientAuth(); len(out) == 0 {
		return nil, errNoCredentials
	}
	return out, nil
}

func ambientAuth() []ssh.AuthMethod {
	var out []ssh.AuthMethod
	if m, err := dialAgent(); err == nil {
		out = append(out, m)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return out
	}
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		if m, err := loadKey(filepath.Join(home, ".ssh", name)); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// loadKey reads a private key, prompting for its passphrase when the
// key is encrypted.
func loadKey(path string) (ssh.AuthMethod, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if _, encrypted := err.(*ssh.PassphraseMissingError); encrypted {
		var pass []byte
		if pass, err = promptHidden("Passphrase for " + path + ": "); err != nil {
			return nil, err
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, pass)
	}
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}

func dialAgent() (ssh.AuthMethod, error) {
	sock, ok := os.LookupEnv("SSH_AUTH_SOCK")
	if !ok || sock == "" {
		return nil, errors.New("SSH_AUTH_SOCK is not set")
	}
	c, err := net.Dial("unix", sock)
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeysCallback(agent.NewClient(c).Signers), nil
}

// promptHidden asks on stderr and reads a line from the terminal with
// echo off.  Piped stdin cannot answer.
func promptHidden(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal, cannot prompt")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(fd)
}

// hostKeyCallback checks the bastion's key against known_hosts.  With
// strict checking off any key is accepted.
func hostKeyCallback(cfg *SSHConfig) (ssh.HostKeyCallback, error) {
	if !cfg.StrictHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec
	}
	path := cfg.KnownHosts
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	return knownhosts.New(path)
}
