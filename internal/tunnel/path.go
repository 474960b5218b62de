package tunnel

import (
	"net"
	"sync/atomic"

	"github.com/jmeyer977/ethudp/internal/mss"
	"github.com/jmeyer977/ethudp/internal/transport"
)

// Role identifies which of the (up to) two UDP paths an endpoint plays,
// matching the original implementation's MASTER/SLAVE indices.
type Role int

const (
	RoleMaster Role = iota
	RoleSlave
)

func (r Role) String() string {
	if r == RoleSlave {
		return "slave"
	}
	return "master"
}

// pathStatus mirrors STATUS_OK/STATUS_BAD: whether the peer on this path
// has answered a PING recently enough to be considered live.
type pathStatus int32

const (
	statusBad pathStatus = iota
	statusOK
)

// path is one UDP endpoint plus its control-plane bookkeeping: liveness
// ticket/pong tracking and traffic counters for the hourly report.
type path struct {
	role            Role
	endpoint        *transport.Endpoint
	transportFamily mss.TransportFamily

	status atomic.Int32 // pathStatus

	ticket   atomic.Uint64
	lastPong atomic.Uint64

	pingSend atomic.Uint64
	pingRecv atomic.Uint64
	pongSend atomic.Uint64
	pongRecv atomic.Uint64

	framesSent atomic.Uint64
	framesRecv atomic.Uint64
	bytesSent  atomic.Uint64
	bytesRecv  atomic.Uint64
}

func newPath(role Role, endpoint *transport.Endpoint, family mss.TransportFamily) *path {
	p := &path{role: role, endpoint: endpoint, transportFamily: family}
	p.status.Store(int32(statusOK))
	return p
}

func (p *path) isOK() bool { return pathStatus(p.status.Load()) == statusOK }

// transportFamilyOf derives the MSS ceiling family from a UDP path's
// local bind address, fixed at socket-open time — not from the remote
// peer, which for a NAT-mode path is unknown (nil) until a datagram is
// accepted and may then be learned in either family.
func transportFamilyOf(addr *net.UDPAddr) mss.TransportFamily {
	if addr == nil || addr.IP.To4() != nil {
		return mss.TransportIPv4
	}
	return mss.TransportIPv6
}
