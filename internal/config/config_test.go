package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ethudp.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadMinimalEthernetConfig(t *testing.T) {
	path := writeTempConfig(t, `
mode: ethernet
interface: eth0
master:
  local_port: 6000
  remote_ip: 203.0.113.1
  remote_port: 6000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Mode != ModeEthernet {
		t.Errorf("got mode %q, want ethernet", cfg.Mode)
	}
	if cfg.Cipher != CipherNone {
		t.Errorf("expected default cipher none, got %q", cfg.Cipher)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %q", cfg.LogLevel)
	}
	if cfg.MasterSlave() {
		t.Error("expected MasterSlave() false without a slave path")
	}
}

func TestLoadRejectsMissingInterfaceInEthernetMode(t *testing.T) {
	path := writeTempConfig(t, `
mode: ethernet
master:
  local_port: 6000
  remote_ip: 203.0.113.1
  remote_port: 6000
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for ethernet mode without an interface")
	}
}

func TestLoadRejectsCipherWithoutKey(t *testing.T) {
	path := writeTempConfig(t, `
mode: tap
interface: tap0
master:
  local_port: 6000
  remote_ip: 203.0.113.1
  remote_port: 6000
cipher: aes-256
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for cipher configured without a key")
	}
}

func TestLoadWithSlavePath(t *testing.T) {
	path := writeTempConfig(t, `
mode: tap
interface: tap0
master:
  local_port: 6000
  remote_ip: 203.0.113.1
  remote_port: 6000
slave:
  local_port: 6001
  remote_ip: 203.0.113.2
  remote_port: 6001
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !cfg.MasterSlave() {
		t.Error("expected MasterSlave() true with a configured slave path")
	}
}

func TestReadOnlyImpliesLoopbackCheck(t *testing.T) {
	path := writeTempConfig(t, `
mode: tap
interface: tap0
master:
  local_port: 6000
  remote_ip: 203.0.113.1
  remote_port: 6000
read_only: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !cfg.LoopbackCheckEnabled() {
		t.Error("expected read_only to imply loopback_check by default")
	}
}

func TestExplicitLoopbackCheckFalseOverridesReadOnlyDefault(t *testing.T) {
	path := writeTempConfig(t, `
mode: tap
interface: tap0
master:
  local_port: 6000
  remote_ip: 203.0.113.1
  remote_port: 6000
read_only: true
loopback_check: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.LoopbackCheckEnabled() {
		t.Error("expected explicit loopback_check: false to override the read_only default")
	}
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	path := writeTempConfig(t, `
mode: nonsense
master:
  local_port: 6000
  remote_ip: 203.0.113.1
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestNATModeOmitsRemotePort(t *testing.T) {
	path := writeTempConfig(t, `
mode: tap
interface: tap0
master:
  local_port: 6000
  remote_ip: 203.0.113.1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Master.RemotePort != 0 {
		t.Errorf("expected remote_port 0 (NAT mode), got %d", cfg.Master.RemotePort)
	}
}
