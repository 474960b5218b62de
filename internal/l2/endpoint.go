// Package l2 provides the Tap Endpoint component (spec.md §4.1): the
// source of Ethernet frames on the local side of the tunnel, either a
// raw AF_PACKET socket bound to a NIC (config.ModeEthernet) or a TAP
// character device (config.ModeTAP / config.ModeBridge).
package l2

import "context"

// MaxFrameSize bounds a single Ethernet frame read from either endpoint
// kind, matching the original implementation's MAX_PACKET_SIZE plus room
// for a reconstructed VLAN tag.
const MaxFrameSize = 2048 + 4

// Endpoint is the local-side source and sink of Ethernet frames.
// Implementations must be safe for concurrent RecvFrame/SendFrame use by
// separate goroutines.
type Endpoint interface {
	// RecvFrame blocks until a frame is available, ctx is done, or the
	// endpoint is closed. The returned slice is only valid until the next
	// RecvFrame call.
	RecvFrame(ctx context.Context) ([]byte, error)
	// SendFrame writes one full Ethernet frame.
	SendFrame(frame []byte) error
	// Name reports the underlying interface name, for logging.
	Name() string
	Close() error
}
