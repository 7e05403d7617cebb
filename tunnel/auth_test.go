package tunnel

import (
	"context"
	"path/filepath"
	"testing"

	kkerr "knockknock/internal/errors"
	"knockknock/tunnel/sshtest"
)

func TestBuildAuthMethods_KeyFile(t *testing.T) {
	methods, err := BuildAuthMethods(&SSHConfig{KeyPath: sshtest.WriteClientKey(t)})
	if err != nil {
		t.Fatalf("BuildAuthMethods: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("got %d methods, want 1", len(methods))
	}
}

func TestBuildAuthMethods_MissingKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	if _, err := BuildAuthMethods(&SSHConfig{KeyPath: "/nonexistent/key"}); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestBuildAuthMethods_AgentWithoutSocket(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	if _, err := BuildAuthMethods(&SSHConfig{UseAgent: true}); err == nil {
		t.Fatal("expected error without SSH_AUTH_SOCK")
	}
}

func TestBuildAuthMethods_NothingAvailable(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	t.Setenv("HOME", t.TempDir())
	if _, err := BuildAuthMethods(&SSHConfig{}); err == nil {
		t.Fatal("expected error with no credentials")
	}
}

func TestHostKeyCallback_Insecure(t *testing.T) {
	cb, err := hostKeyCallback(&SSHConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if cb == nil {
		t.Fatal("callback should not be nil")
	}
}

func TestHostKeyCallback_StrictMissingFile(t *testing.T) {
	cfg := &SSHConfig{StrictHostKey: true, KnownHosts: filepath.Join(t.TempDir(), "nope")}
	if _, err := hostKeyCallback(cfg); err == nil {
		t.Fatal("expected error for missing known_hosts")
	}
}

func TestNewSSHTunnel_Defaults(t *testing.T) {
	cfg := &SSHConfig{User: "ops", Host: "bastion.example.com"}
	tun := NewSSHTunnel(cfg, nil)
	if cfg.Port != 22 || cfg.ConnTimeout == 0 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Addr() != "bastion.example.com:22" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
	if tun.IsAlive() {
		t.Error("unconnected tunnel reports alive")
	}
	if _, err := tun.Dial(context.Background(), "tcp", "jokes:4444"); !kkerr.Is(err, kkerr.ErrNotConnected) {
		t.Errorf("Dial before Connect = %v, want ErrNotConnected", err)
	}
	if err := tun.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
