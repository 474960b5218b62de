package mss

import "encoding/binary"

// tcpChecksumIPv4 computes the TCP checksum over an IPv4 pseudo-header
// (source, destination, zero, protocol, TCP length) followed by the TCP
// segment itself.
func tcpChecksumIPv4(src, dst []byte, tcpSegment []byte) uint16 {
	var sum uint32
	sum += sum32(src)
	sum += sum32(dst)
	sum += uint32(ipProtoTCP)
	sum += uint32(len(tcpSegment))
	sum += sumBytes(tcpSegment)
	return foldChecksum(sum)
}

// tcpChecksumIPv6 computes the TCP checksum over an IPv6 pseudo-header
// (source, destination, upper-layer length, zero/zero/zero/next-header)
// followed by the TCP segment itself.
func tcpChecksumIPv6(src, dst []byte, tcpSegment []byte) uint16 {
	var sum uint32
	sum += sum32(src)
	sum += sum32(dst)
	sum += uint32(len(tcpSegment))
	sum += uint32(ipProtoTCP)
	sum += sumBytes(tcpSegment)
	return foldChecksum(sum)
}

func sum32(b []byte) uint32 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	return sum
}

func sumBytes(b []byte) uint32 {
	return sum32(b)
}

func foldChecksum(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
