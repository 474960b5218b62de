//go:build !linux

package l2

import (
	"context"
	"fmt"
	"runtime"
)

// RawEndpoint is unsupported outside Linux: AF_PACKET raw sockets and
// PACKET_AUXDATA VLAN reconstruction are Linux-specific (config.ModeEthernet
// requires Linux; config.ModeTAP / config.ModeBridge work everywhere).
type RawEndpoint struct{}

func NewRawEndpoint(ifname string, promiscuous bool) (*RawEndpoint, error) {
	return nil, fmt.Errorf("ethernet mode is not supported on %s", runtime.GOOS)
}

func (r *RawEndpoint) RecvFrame(ctx context.Context) ([]byte, error) {
	return nil, fmt.Errorf("unsupported")
}
func (r *RawEndpoint) SendFrame(frame []byte) error { return fmt.Errorf("unsupported") }
func (r *RawEndpoint) Name() string                 { return "" }
func (r *RawEndpoint) Close() error                 { return nil }
