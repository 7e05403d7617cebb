package core

import (
	"testing"
	"time"

	"knockknock/config"
	"knockknock/internal/transport"
	"knockknock/util"
)

func TestBuild_Connect(t *testing.T) {
	cfg := &config.Config{Mode: config.ModeConnect, Host: "example.com", Port: 4444, Timeout: time.Second}

	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	cm, ok := mode.(*ConnectMode)
	if !ok {
		t.Fatalf("expected *ConnectMode, got %T", mode)
	}
	if cm.Host != "example.com" || cm.Port != 4444 {
		t.Errorf("target = %s:%d", cm.Host, cm.Port)
	}
	d, ok := cm.Dialer.(*transport.TCPDialer)
	if !ok {
		t.Fatalf("expected *TCPDialer, got %T", cm.Dialer)
	}
	if d.Timeout != time.Second {
		t.Errorf("dial timeout = %v", d.Timeout)
	}
}

func TestBuild_ConnectThroughTunnel(t *testing.T) {
	cfg := &config.Config{
		Mode:       config.ModeConnect,
		Host:       "jokes.internal",
		Port:       4444,
		TunnelSpec: "ops@bastion.example.com",
	}
	if err := cfg.ApplyTunnelSpec(); err != nil {
		t.Fatal(err)
	}

	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	cm := mode.(*ConnectMode)
	if _, ok := cm.Dialer.(*transport.SSHDialer); !ok {
		t.Errorf("expected *SSHDialer, got %T", cm.Dialer)
	}
	if !transport.ResolvesRemotely(cm.Dialer) {
		t.Error("tunnel dialer should resolve on the bastion")
	}
}

func TestBuild_Serve(t *testing.T) {
	cfg := &config.Config{
		Mode:        config.ModeServe,
		Bind:        "127.0.0.1",
		Port:        4444,
		MaxConns:    3,
		IdleTimeout: time.Minute,
		Web:         "127.0.0.1:8080",
		Version:     "9.9.9",
	}

	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	sm, ok := mode.(*ServeMode)
	if !ok {
		t.Fatalf("expected *ServeMode, got %T", mode)
	}
	if sm.Address != "127.0.0.1:4444" || sm.Web != "127.0.0.1:8080" || sm.Version != "9.9.9" {
		t.Errorf("mode = %+v", sm)
	}
	if sm.Server.MaxConns != 3 || sm.Server.IdleTimeout != time.Minute {
		t.Errorf("server options = %+v", sm.Server)
	}
	if sm.Server.Metrics == nil {
		t.Error("serve mode should collect metrics")
	}
	if sm.Server.Source == nil || len(sm.Server.Source.ListJokes()) == 0 {
		t.Error("serve mode should fall back to the default jokes")
	}
}

func TestBuild_NoMode(t *testing.T) {
	if _, err := Build(&config.Config{}, util.NewLogger(0)); err == nil {
		t.Fatal("expected error without a mode")
	}
}
