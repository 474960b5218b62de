// Package platform shells out to the host's network configuration tools to
// bring up the TAP device created by internal/l2, assign it an address, or
// attach it to an existing bridge.
package platform

import (
	"fmt"
	"os/exec"
	"runtime"
)

// InterfaceConfigurator drives the platform-specific commands needed to
// stand up a TAP interface for tap and bridge mode (config.ModeTAP /
// config.ModeBridge).
type InterfaceConfigurator struct {
	platform string
}

// New returns a configurator for the host's runtime.GOOS.
func New() *InterfaceConfigurator {
	return &InterfaceConfigurator{platform: runtime.GOOS}
}

// ConfigureAddress assigns ipAddr/netmask to ifaceName and brings it up.
func (ic *InterfaceConfigurator) ConfigureAddress(ifaceName, ipAddr, netmask string) error {
	switch ic.platform {
	case "linux":
		return ic.configureLinux(ifaceName, ipAddr, netmask)
	case "darwin":
		return ic.configureDarwin(ifaceName, ipAddr, netmask)
	default:
		return fmt.Errorf("unsupported platform: %s", ic.platform)
	}
}

// BringUp brings ifaceName up without assigning an address, used in bridge
// mode where the bridge itself carries any IP configuration.
func (ic *InterfaceConfigurator) BringUp(ifaceName string) error {
	switch ic.platform {
	case "linux":
		return run("ip", "link", "set", ifaceName, "up")
	case "darwin":
		return run("ifconfig", ifaceName, "up")
	default:
		return fmt.Errorf("unsupported platform: %s", ic.platform)
	}
}

// AttachToBridge adds ifaceName as a port of bridgeName (Linux only; bridge
// mode is not supported on darwin).
func (ic *InterfaceConfigurator) AttachToBridge(ifaceName, bridgeName string) error {
	if ic.platform != "linux" {
		return fmt.Errorf("bridge mode is not supported on %s", ic.platform)
	}
	if err := run("ip", "link", "set", ifaceName, "master", bridgeName); err != nil {
		return fmt.Errorf("attach %s to %s: %w", ifaceName, bridgeName, err)
	}
	return ic.BringUp(ifaceName)
}

// Down tears down ifaceName's address and administrative state.
func (ic *InterfaceConfigurator) Down(ifaceName string) error {
	switch ic.platform {
	case "linux":
		if err := run("ip", "link", "set", ifaceName, "down"); err != nil {
			return err
		}
		return run("ip", "addr", "flush", "dev", ifaceName)
	case "darwin":
		return run("ifconfig", ifaceName, "down")
	default:
		return fmt.Errorf("unsupported platform: %s", ic.platform)
	}
}

func (ic *InterfaceConfigurator) configureLinux(ifaceName, ipAddr, netmask string) error {
	cidr, err := netmaskToCIDR(netmask)
	if err != nil {
		return fmt.Errorf("invalid netmask: %w", err)
	}
	if err := run("ip", "addr", "add", fmt.Sprintf("%s/%d", ipAddr, cidr), "dev", ifaceName); err != nil {
		return fmt.Errorf("add address: %w", err)
	}
	return ic.BringUp(ifaceName)
}

func (ic *InterfaceConfigurator) configureDarwin(ifaceName, ipAddr, netmask string) error {
	return run("ifconfig", ifaceName, ipAddr, "netmask", netmask, "up")
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %v: %w: %s", name, args, err, string(output))
	}
	return nil
}

// netmaskToCIDR converts a dotted-decimal netmask to its prefix length.
func netmaskToCIDR(netmask string) (int, error) {
	var a, b, c, d int
	if _, err := fmt.Sscanf(netmask, "%d.%d.%d.%d", &a, &b, &c, &d); err != nil {
		return 0, fmt.Errorf("invalid netmask format")
	}
	cidr := 0
	for _, octet := range []int{a, b, c, d} {
		if octet < 0 || octet > 255 {
			return 0, fmt.Errorf("invalid octet %d", octet)
		}
		seenZero := false
		for i := 7; i >= 0; i-- {
			bit := octet & (1 << uint(i))
			if bit != 0 {
				if seenZero {
					return 0, fmt.Errorf("non-contiguous netmask")
				}
				cidr++
			} else {
				seenZero = true
			}
		}
	}
	return cidr, nil
}
