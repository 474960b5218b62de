// Package transport implements the UDP Endpoint component (spec.md
// §4.2): one socket per path (master/slave), in either connected mode
// (fixed remote address) or NAT mode (remote address learned from the
// first accepted datagram).
package transport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
)

// socketReadBufferSize mirrors the original implementation's 40 MiB
// SO_RCVBUF setting, sized to absorb bursts without kernel-level drops.
const socketReadBufferSize = 40 * 1024 * 1024

// Endpoint is one UDP path: either connected to a fixed remote address,
// or in NAT mode where the remote address is learned dynamically.
type Endpoint struct {
	conn      *net.UDPConn
	natMode   bool
	connected bool

	remote atomic.Pointer[net.UDPAddr]
}

// New opens a UDP socket bound to localAddr. When remoteAddr is nil the
// endpoint starts in NAT mode: no datagram is sent until a peer address
// is learned via UpdateRemote. When remoteAddr is non-nil the socket is
// connect()-ed to it, so the kernel discards any datagram not sent from
// that exact peer (spec.md §4.2).
func New(localAddr, remoteAddr *net.UDPAddr) (*Endpoint, error) {
	var conn *net.UDPConn
	var err error
	if remoteAddr != nil {
		conn, err = net.DialUDP(udpNetwork(localAddr), localAddr, remoteAddr)
		if err != nil {
			return nil, fmt.Errorf("dial udp %s -> %s: %w", localAddr, remoteAddr, err)
		}
	} else {
		conn, err = net.ListenUDP(udpNetwork(localAddr), localAddr)
		if err != nil {
			return nil, fmt.Errorf("listen udp %s: %w", localAddr, err)
		}
	}
	_ = conn.SetReadBuffer(socketReadBufferSize)

	e := &Endpoint{
		conn:      conn,
		natMode:   remoteAddr == nil,
		connected: remoteAddr != nil,
	}
	if remoteAddr != nil {
		e.remote.Store(remoteAddr)
	}
	return e, nil
}

func udpNetwork(addr *net.UDPAddr) string {
	if addr.IP.To4() != nil {
		return "udp4"
	}
	return "udp6"
}

// NATMode reports whether this endpoint learns its remote address from
// inbound traffic rather than using a fixed one.
func (e *Endpoint) NATMode() bool { return e.natMode }

// Remote returns the current remote address, or nil if none has been
// learned yet (NAT mode, before the first accepted datagram).
func (e *Endpoint) Remote() *net.UDPAddr {
	return e.remote.Load()
}

// UpdateRemote replaces the learned remote address (NAT mode only).
func (e *Endpoint) UpdateRemote(addr *net.UDPAddr) {
	e.remote.Store(addr)
}

// Recv reads one datagram and the address it arrived from. On a
// connected-mode endpoint the kernel has already filtered out any
// datagram not sent from the dialed peer, so from is always that peer.
func (e *Endpoint) Recv(ctx context.Context, buf []byte) (n int, from *net.UDPAddr, err error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = e.conn.SetReadDeadline(deadline)
	}
	if e.connected {
		n, err = e.conn.Read(buf)
		return n, e.remote.Load(), err
	}
	n, from, err = e.conn.ReadFromUDP(buf)
	return n, from, err
}

// Send writes payload to the current remote address. It is a no-op (not
// an error) when no remote address is known yet, matching the original
// behavior of a NAT-mode path with no peer learned.
func (e *Endpoint) Send(payload []byte) error {
	if e.connected {
		_, err := e.conn.Write(payload)
		return err
	}
	remote := e.remote.Load()
	if remote == nil {
		return nil
	}
	_, err := e.conn.WriteToUDP(payload, remote)
	return err
}

// LocalAddr returns the endpoint's bound local address. Its family
// (IPv4/IPv6) is fixed at socket-open time, unlike Remote which is
// unknown until a NAT-mode peer is learned.
func (e *Endpoint) LocalAddr() *net.UDPAddr { return e.conn.LocalAddr().(*net.UDPAddr) }

func (e *Endpoint) Close() error { return e.conn.Close() }
