// Package mss rewrites the TCP MSS option of SYN segments so
// that a TCP session never negotiates a segment size that won't fit once
// the frame is re-encapsulated in a UDP datagram (spec.md §4.4).
package mss

import "encoding/binary"

// TransportFamily is the address family of the UDP path a frame is about
// to be sent over; it determines how much headroom the encapsulation
// needs and therefore which MSS ceiling applies.
type TransportFamily int

const (
	TransportIPv4 TransportFamily = iota
	TransportIPv6
)

const (
	etherTypeIPv4  = 0x0800
	etherTypeIPv6  = 0x86dd
	etherType8021Q = 0x8100

	ipProtoTCP = 6

	tcpOptEnd = 0
	tcpOptNOP = 1
	tcpOptMSS = 2
)

// Clamp rewrites frame in place, lowering (never raising) the MSS option
// of a TCP SYN segment to fit under the ceiling for the given transport
// family. It is a no-op for anything that isn't an IPv4/IPv6 TCP SYN:
// non-IP frames, fragments, non-SYN segments, or a SYN whose MSS already
// fits. frame must be a full Ethernet frame (destination+source MAC,
// EtherType, payload); an optional single 802.1Q tag is recognized and
// skipped.
func Clamp(frame []byte, transport TransportFamily) {
	if len(frame) < 54 {
		return
	}
	packet := frame[12:]
	vlanTagged := false

	if packet[0] == 0x81 && packet[1] == 0x00 {
		packet = packet[4:]
		vlanTagged = true
	}
	if len(packet) < 2 {
		return
	}

	etherType := binary.BigEndian.Uint16(packet[0:2])
	switch etherType {
	case etherTypeIPv4:
		clampIPv4(packet[2:], transport, vlanTagged)
	case etherTypeIPv6:
		clampIPv6(packet[2:], transport, vlanTagged)
	}
}

func clampIPv4(ip []byte, transport TransportFamily, vlanTagged bool) {
	if len(ip) < 20 {
		return
	}
	if ip[0]>>4 != 4 {
		return
	}
	fragOff := binary.BigEndian.Uint16(ip[6:8])
	if fragOff&0x1fff != 0 {
		return // not the first fragment
	}
	if ip[9] != ipProtoTCP {
		return
	}
	totalLen := int(binary.BigEndian.Uint16(ip[2:4]))
	if totalLen > len(ip) {
		return
	}
	ihl := int(ip[0]&0x0f) * 4
	if ihl < 20 || len(ip) < ihl {
		return
	}
	tcp := ip[ihl:]
	if len(tcp) < 20 {
		return
	}
	if tcp[13]&0x02 == 0 { // SYN flag
		return
	}

	var newMSS uint16
	switch transport {
	case TransportIPv4:
		newMSS = 1418
	case TransportIPv6:
		newMSS = 1398
	}
	if vlanTagged {
		newMSS -= 4
	}

	if !clampTCPOptions(tcp, newMSS) {
		return
	}

	tcp[16], tcp[17] = 0, 0
	checksum := tcpChecksumIPv4(ip[12:16], ip[16:20], tcp[:totalLen-ihl])
	binary.BigEndian.PutUint16(tcp[16:18], checksum)
}

func clampIPv6(ip []byte, transport TransportFamily, vlanTagged bool) {
	if len(ip) < 40 {
		return
	}
	if ip[0]>>4 != 6 {
		return
	}
	if ip[6] != ipProtoTCP {
		return
	}
	payloadLen := int(binary.BigEndian.Uint16(ip[4:6]))
	if payloadLen > len(ip)-40 {
		return
	}
	tcp := ip[40:]
	if len(tcp) < 20 {
		return
	}
	if tcp[13]&0x02 == 0 {
		return
	}

	var newMSS uint16
	switch transport {
	case TransportIPv4:
		newMSS = 1398
	case TransportIPv6:
		newMSS = 1378
	}
	if vlanTagged {
		newMSS -= 4
	}

	if !clampTCPOptions(tcp, newMSS) {
		return
	}

	tcp[16], tcp[17] = 0, 0
	checksum := tcpChecksumIPv6(ip[8:24], ip[24:40], tcp[:payloadLen])
	binary.BigEndian.PutUint16(tcp[16:18], checksum)
}

// clampTCPOptions walks the TCP option list looking for an MSS option
// (kind 2, length 4) and lowers it in place. It returns true if it made a
// change (so the caller needs to recompute the checksum).
func clampTCPOptions(tcp []byte, newMSS uint16) bool {
	dataOffset := int(tcp[12]>>4) * 4
	if dataOffset > len(tcp) {
		dataOffset = len(tcp)
	}

	for i := 20; i < dataOffset; i += optlen(tcp, i) {
		if i >= len(tcp) {
			return false
		}
		if tcp[i] == tcpOptMSS && dataOffset-i >= 4 && i+1 < len(tcp) && tcp[i+1] == 4 {
			oldMSS := binary.BigEndian.Uint16(tcp[i+2 : i+4])
			if oldMSS <= newMSS {
				return false // never raise the MSS
			}
			binary.BigEndian.PutUint16(tcp[i+2:i+4], newMSS)
			return true
		}
	}
	return false
}

// optlen mirrors the original implementation's option-length lookup,
// including its quirk: both TCPOPT_EOL (0) and TCPOPT_NOP (1) are
// reported as length 1, so a zero-length option never stalls the walk.
func optlen(opt []byte, offset int) int {
	if offset+1 >= len(opt) {
		return 1
	}
	if opt[offset] <= tcpOptNOP || opt[offset+1] == 0 {
		return 1
	}
	return int(opt[offset+1])
}
