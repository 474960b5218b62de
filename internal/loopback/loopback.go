// Package loopback detects frames that would loop a tunnel back into
// itself: a UDP datagram whose source or destination IP is one of the
// tunnel's own remote peers (spec.md §4.6). Forwarding such a frame onto
// the UDP path would re-encapsulate already-tunneled traffic.
package loopback

import (
	"encoding/binary"
	"net"
)

const (
	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86dd
	ipProtoUDP    = 17
)

// Check reports whether frame's encapsulated IPv4/IPv6 packet has the UDP
// protocol and a source or destination address matching one of peers.
// Non-IP, non-UDP, or malformed frames are never loopback candidates.
func Check(frame []byte, peers []net.IP) bool {
	if len(frame) < 14 {
		return false
	}
	packet := frame[12:]

	if packet[0] == 0x81 && packet[1] == 0x00 {
		if len(packet) < 4 {
			return false
		}
		packet = packet[4:]
	}
	if len(packet) < 2 {
		return false
	}

	etherType := binary.BigEndian.Uint16(packet[0:2])
	packet = packet[2:]

	switch etherType {
	case etherTypeIPv4:
		return checkIPv4(packet, peers)
	case etherTypeIPv6:
		return checkIPv6(packet, peers)
	default:
		return false
	}
}

func checkIPv4(ip []byte, peers []net.IP) bool {
	if len(ip) < 20 {
		return false
	}
	if ip[0]>>4 != 4 {
		return false
	}
	if ip[9] != ipProtoUDP {
		return false
	}
	src := net.IP(ip[12:16])
	dst := net.IP(ip[16:20])
	for _, peer := range peers {
		p4 := peer.To4()
		if p4 == nil {
			continue
		}
		if src.Equal(p4) || dst.Equal(p4) {
			return true
		}
	}
	return false
}

func checkIPv6(ip []byte, peers []net.IP) bool {
	if len(ip) < 40 {
		return false
	}
	if ip[0]>>4 != 6 {
		return false
	}
	if ip[6] != ipProtoUDP {
		return false
	}
	src := net.IP(ip[8:24])
	dst := net.IP(ip[24:40])
	for _, peer := range peers {
		if peer.To4() != nil {
			continue
		}
		if src.Equal(peer) || dst.Equal(peer) {
			return true
		}
	}
	return false
}
