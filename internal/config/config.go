// Package config loads the daemon's static configuration: operating mode,
// one or two UDP path endpoints, cipher selection, and the behavioral
// flags from spec.md §3 ("Flags").
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Mode selects how the Tap Endpoint talks to the local Layer-2 source.
type Mode string

const (
	ModeEthernet Mode = "ethernet" // MODEE: raw AF_PACKET bridge over a NIC
	ModeTAP      Mode = "tap"      // MODEI: TAP device with local IP assignment
	ModeBridge   Mode = "bridge"   // MODEB: TAP device added to an external bridge
)

// CipherAlgorithm names the symmetric cipher applied to UDP payloads.
type CipherAlgorithm string

const (
	CipherNone    CipherAlgorithm = "none"
	CipherXOR     CipherAlgorithm = "xor"
	CipherAES128  CipherAlgorithm = "aes-128"
	CipherAES192  CipherAlgorithm = "aes-192"
	CipherAES256  CipherAlgorithm = "aes-256"
)

// PathConfig is one of the two (local, remote) UDP bindings a tunnel can
// run; RemotePort == 0 selects NAT mode (spec.md §4.2).
type PathConfig struct {
	LocalIP    string `yaml:"local_ip"`
	LocalPort  int    `yaml:"local_port"`
	RemoteIP   string `yaml:"remote_ip"`
	RemotePort int    `yaml:"remote_port"`
}

// Config is the complete static configuration for one tunnel endpoint.
type Config struct {
	Mode Mode `yaml:"mode"`

	// Interface is the NIC name in ethernet mode, the desired TAP device
	// name otherwise.
	Interface string `yaml:"interface"`
	// BridgeName is only consulted in bridge mode.
	BridgeName string `yaml:"bridge_name"`
	// LocalAddress/Netmask configure the TAP device's IP in tap mode.
	LocalAddress string `yaml:"local_address"`
	Netmask      string `yaml:"netmask"`

	Master PathConfig  `yaml:"master"`
	Slave  *PathConfig `yaml:"slave,omitempty"`

	Password string          `yaml:"password"`
	Cipher   CipherAlgorithm `yaml:"cipher"`
	Key      string          `yaml:"key"`

	ReadOnly  bool `yaml:"read_only"`
	WriteOnly bool `yaml:"write_only"`
	FixMSS    bool `yaml:"fixmss"`
	// LoopbackCheck is a *bool so an explicit "loopback_check: false" in
	// YAML can be told apart from the field being left unset — setDefaults
	// only fills in a default when this is nil, never overriding an
	// explicit value either way.
	LoopbackCheck *bool `yaml:"loopback_check"`
	NoPromisc     bool  `yaml:"no_promisc"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	Monitor MonitorConfig `yaml:"monitor"`
}

// MonitorConfig controls the optional local WebSocket status endpoint
// (SPEC_FULL.md §4).
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModeTAP
	}
	if c.Cipher == "" {
		c.Cipher = CipherNone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	// read_only implies the loopback check should be on by default, per
	// spec.md §4.6 ("the default under read_only") — but only when the
	// operator hasn't said anything explicit either way.
	if c.LoopbackCheck == nil {
		enabled := c.ReadOnly
		c.LoopbackCheck = &enabled
	}
}

// LoopbackCheckEnabled reports the effective loopback_check setting,
// resolved by setDefaults from either an explicit YAML value or the
// read_only-derived default.
func (c *Config) LoopbackCheckEnabled() bool {
	return c.LoopbackCheck != nil && *c.LoopbackCheck
}

// Validate checks the configuration for the fatal-at-startup errors
// described in spec.md §7 ("Configuration errors").
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeEthernet, ModeTAP, ModeBridge:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.Mode == ModeEthernet && c.Interface == "" {
		return fmt.Errorf("ethernet mode requires an interface name")
	}
	if c.Mode == ModeBridge && c.BridgeName == "" {
		return fmt.Errorf("bridge mode requires a bridge name")
	}
	if c.Master.LocalPort <= 0 || c.Master.LocalPort > 65535 {
		return fmt.Errorf("invalid master local port: %d", c.Master.LocalPort)
	}
	if c.Master.RemoteIP == "" {
		return fmt.Errorf("master remote IP is required")
	}
	if c.Slave != nil {
		if c.Slave.LocalPort <= 0 || c.Slave.LocalPort > 65535 {
			return fmt.Errorf("invalid slave local port: %d", c.Slave.LocalPort)
		}
		if c.Slave.RemoteIP == "" {
			return fmt.Errorf("slave remote IP is required")
		}
	}
	switch c.Cipher {
	case CipherNone, CipherXOR, CipherAES128, CipherAES192, CipherAES256:
	default:
		return fmt.Errorf("unknown cipher algorithm %q", c.Cipher)
	}
	if c.Cipher != CipherNone && c.Key == "" {
		return fmt.Errorf("cipher %q requires a key", c.Cipher)
	}
	return nil
}

// MasterSlave reports whether a redundant slave path is configured.
func (c *Config) MasterSlave() bool {
	return c.Slave != nil
}
