package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

// openLoopback opens a NAT-mode endpoint on an ephemeral loopback port,
// used to hand out addresses for the connected-mode endpoints under test
// below and as the unconnected stranger sender.
func openLoopback(t *testing.T) *Endpoint {
	t.Helper()
	e, err := New(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return e
}

func TestConnectedModeSendRecv(t *testing.T) {
	aSock := openLoopback(t)
	aLocal := aSock.LocalAddr()
	aSock.Close()
	bSock := openLoopback(t)
	bLocal := bSock.LocalAddr()
	bSock.Close()

	a, err := New(aLocal, bLocal)
	if err != nil {
		t.Fatalf("New(a) failed: %v", err)
	}
	defer a.Close()

	b, err := New(bLocal, aLocal)
	if err != nil {
		t.Fatalf("New(b) failed: %v", err)
	}
	defer b.Close()

	if err := a.Send([]byte("hello")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	buf := make([]byte, 64)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, from, err := b.Recv(ctx, buf)
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("got %q, want %q", buf[:n], "hello")
	}
	if from == nil || !from.IP.Equal(aLocal.IP) || from.Port != aLocal.Port {
		t.Errorf("got sender %v, want %v", from, aLocal)
	}
}

func TestConnectedModeRejectsUnsolicitedSender(t *testing.T) {
	aSock := openLoopback(t)
	aLocal := aSock.LocalAddr()
	aSock.Close()
	bSock := openLoopback(t)
	bLocal := bSock.LocalAddr()
	bSock.Close()

	b, err := New(bLocal, aLocal)
	if err != nil {
		t.Fatalf("New(b) failed: %v", err)
	}
	defer b.Close()

	// A stranger endpoint, never dialed by b, sends b an unsolicited
	// datagram. The kernel must drop it rather than deliver it to Recv,
	// since b's socket is connect()-ed to aLocal only.
	stranger := openLoopback(t)
	defer stranger.Close()
	if _, err := stranger.conn.WriteToUDP([]byte("unsolicited"), bLocal); err != nil {
		t.Fatalf("stranger send failed: %v", err)
	}

	// The real peer then sends its own datagram, which must be the one
	// actually delivered.
	a, err := New(aLocal, bLocal)
	if err != nil {
		t.Fatalf("New(a) failed: %v", err)
	}
	defer a.Close()
	if err := a.Send([]byte("from peer")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	buf := make([]byte, 64)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, _, err := b.Recv(ctx, buf)
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if string(buf[:n]) != "from peer" {
		t.Errorf("got %q, want the peer's datagram, not the stranger's", buf[:n])
	}
}

func TestNATModeStartsWithNoRemote(t *testing.T) {
	e, err := New(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer e.Close()

	if !e.NATMode() {
		t.Error("expected NAT mode when remoteAddr is nil")
	}
	if e.Remote() != nil {
		t.Error("expected no remote address before one is learned")
	}
	if err := e.Send([]byte("x")); err != nil {
		t.Errorf("Send before remote is learned must be a silent no-op, got: %v", err)
	}
}

func TestUpdateRemoteIsVisibleImmediately(t *testing.T) {
	e, err := New(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer e.Close()

	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 4500}
	e.UpdateRemote(addr)
	got := e.Remote()
	if got == nil || !got.IP.Equal(addr.IP) || got.Port != addr.Port {
		t.Errorf("got %v, want %v", got, addr)
	}
}
