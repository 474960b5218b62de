//go:build linux

package l2

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	ethPAll    = 0x0003
	vlanTagLen = 4

	// tpacketAuxdataSize is sizeof(struct tpacket_auxdata) on Linux: three
	// uint32 fields (status, len, snaplen) followed by four uint16 fields
	// (mac, net, vlan_tci, vlan_tpid) — 20 bytes, 4-byte aligned.
	tpacketAuxdataSize = 20
	tpStatusVlanValid  = 0x10
)

// RawEndpoint is an AF_PACKET raw socket bound to a single NIC, used for
// config.ModeEthernet. It reconstructs any VLAN tag the NIC's driver
// stripped into auxiliary data before handing the frame to the kernel,
// since hardware VLAN offload removes the 802.1Q tag from the frame
// itself.
type RawEndpoint struct {
	fd      int
	ifname  string
	ifindex int

	mu  sync.Mutex
	buf []byte
	oob []byte
}

// NewRawEndpoint opens a raw packet socket on ifname, optionally setting
// promiscuous mode.
func NewRawEndpoint(ifname string, promiscuous bool) (*RawEndpoint, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %s: %w", ifname, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(ethPAll)))
	if err != nil {
		return nil, fmt.Errorf("open packet socket: %w", err)
	}

	sa := &unix.SockaddrLinklayer{
		Protocol: htons(ethPAll),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", ifname, err)
	}

	if promiscuous {
		mreq := &unix.PacketMreq{
			Ifindex: int32(iface.Index),
			Type:    unix.PACKET_MR_PROMISC,
		}
		if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, mreq); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("enable promiscuous mode on %s: %w", ifname, err)
		}
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_PACKET, unix.PACKET_AUXDATA, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("enable packet auxdata on %s: %w", ifname, err)
	}

	const rcvBuf = 40 * 1024 * 1024
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBuf)

	return &RawEndpoint{
		fd:      fd,
		ifname:  ifname,
		ifindex: iface.Index,
		buf:     make([]byte, MaxFrameSize),
		oob:     make([]byte, unix.CmsgSpace(tpacketAuxdataSize)),
	}, nil
}

func htons(v uint16) uint16 {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return binary.NativeEndian.Uint16(b)
}

// RecvFrame reads one frame, reconstructing its VLAN tag from auxiliary
// data when the NIC stripped it. ctx cancellation does not interrupt an
// in-flight blocking read; callers close the endpoint to unblock it.
func (r *RawEndpoint) RecvFrame(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Reserve headroom at the front of the buffer so a reconstructed VLAN
	// tag can be written in place without a second copy.
	payload := r.buf[vlanTagLen:]
	n, oobn, _, _, err := unix.Recvmsg(r.fd, payload, r.oob, unix.MSG_TRUNC)
	if err != nil {
		return nil, fmt.Errorf("recvmsg on %s: %w", r.ifname, err)
	}
	if n > len(payload) {
		n = len(payload) // truncated by MSG_TRUNC, keep what fit
	}

	tci, vlanPresent := parseVLANAuxdata(r.oob[:oobn])
	if !vlanPresent || n < 12 {
		return r.buf[vlanTagLen : vlanTagLen+n], nil
	}

	// Shift the 12-byte MAC prefix left over the reserved headroom, then
	// write the reconstructed 802.1Q tag into the gap it leaves behind.
	frame := r.buf[:vlanTagLen+n]
	copy(frame[0:12], frame[vlanTagLen:vlanTagLen+12])
	frame[12], frame[13] = 0x81, 0x00
	binary.BigEndian.PutUint16(frame[14:16], tci)
	return frame, nil
}

// parseVLANAuxdata scans the control message buffer for a tpacket_auxdata
// record signaling a stripped VLAN tag, returning its TCI.
func parseVLANAuxdata(oob []byte) (tci uint16, present bool) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return 0, false
	}
	for _, msg := range msgs {
		if msg.Header.Level != unix.SOL_PACKET || msg.Header.Type != unix.PACKET_AUXDATA {
			continue
		}
		if len(msg.Data) < tpacketAuxdataSize {
			continue
		}
		status := binary.NativeEndian.Uint32(msg.Data[0:4])
		vlanTCI := binary.NativeEndian.Uint16(msg.Data[16:18])
		if vlanTCI == 0 && status&tpStatusVlanValid == 0 {
			continue
		}
		return vlanTCI, true
	}
	return 0, false
}

func (r *RawEndpoint) SendFrame(frame []byte) error {
	sa := &unix.SockaddrLinklayer{
		Protocol: htons(ethPAll),
		Ifindex:  r.ifindex,
	}
	return unix.Sendto(r.fd, frame, 0, sa)
}

func (r *RawEndpoint) Name() string { return r.ifname }

func (r *RawEndpoint) Close() error {
	return unix.Close(r.fd)
}
