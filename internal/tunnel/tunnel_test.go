package tunnel

import (
	"net"
	"testing"

	"github.com/jmeyer977/ethudp/internal/config"
	"github.com/jmeyer977/ethudp/internal/logging"
	"github.com/jmeyer977/ethudp/internal/mss"
	"github.com/jmeyer977/ethudp/internal/transport"
)

func newTestPath(t *testing.T, remote *net.UDPAddr) *path {
	t.Helper()
	ep, err := transport.New(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}, remote)
	if err != nil {
		t.Fatalf("transport.New() failed: %v", err)
	}
	t.Cleanup(func() { ep.Close() })
	return newPath(RoleMaster, ep, mss.TransportIPv4)
}

func newTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	l, err := logging.New("tunnel-test", logging.ERROR, "")
	if err != nil {
		t.Fatalf("logging.New() failed: %v", err)
	}
	return l
}

func TestTickPathTransitionsToBadAfterMissedPongs(t *testing.T) {
	p := newTestPath(t, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1})
	tun := &Tunnel{master: p, cfg: newConfigWithPassword(""), log: newTestLogger(t)}

	for i := 0; i < ticksBadAfter+1; i++ {
		tun.tickPath(p)
	}
	if p.isOK() {
		t.Error("expected path to be marked bad after missing pongs for ticksBadAfter ticks")
	}
}

func TestTickPathRecoversOnFreshPong(t *testing.T) {
	p := newTestPath(t, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1})
	tun := &Tunnel{master: p, cfg: newConfigWithPassword(""), log: newTestLogger(t)}

	for i := 0; i < ticksBadAfter+1; i++ {
		tun.tickPath(p)
	}
	if p.isOK() {
		t.Fatal("setup: expected path to be bad before recovery")
	}

	p.lastPong.Store(p.ticket.Load())
	tun.tickPath(p)
	if !p.isOK() {
		t.Error("expected path to recover once ticket is within ticksGoodAfter of last pong")
	}
}

func TestAcceptNATPeerNoPasswordLearnsAnySource(t *testing.T) {
	p := newTestPath(t, nil)
	tun := &Tunnel{}
	tun.cfg = newConfigWithPassword("")

	from := &net.UDPAddr{IP: net.ParseIP("198.51.100.5"), Port: 4500}
	if !tun.acceptNATPeer(p, from, []byte("any data")) {
		t.Error("expected data datagram to be accepted once source is learned")
	}
	remote := p.endpoint.Remote()
	if remote == nil || !remote.IP.Equal(from.IP) {
		t.Errorf("expected peer to become %v, got %v", from, remote)
	}
}

func TestAcceptNATPeerNoPasswordDropsPasswordPayload(t *testing.T) {
	p := newTestPath(t, nil)
	tun := &Tunnel{cfg: newConfigWithPassword("")}

	from := &net.UDPAddr{IP: net.ParseIP("198.51.100.5"), Port: 4500}
	if tun.acceptNATPeer(p, from, EncodePassword("whatever")) {
		t.Error("a PASSWORD datagram itself must never be forwarded")
	}
}

func TestAcceptNATPeerWithPasswordRequiresExactMatch(t *testing.T) {
	p := newTestPath(t, nil)
	tun := &Tunnel{cfg: newConfigWithPassword("hunter2")}

	from := &net.UDPAddr{IP: net.ParseIP("198.51.100.5"), Port: 4500}

	if tun.acceptNATPeer(p, from, EncodePassword("wrong")) {
		t.Error("wrong password must not update the peer")
	}
	if p.endpoint.Remote() != nil {
		t.Error("peer must remain unset after a wrong password")
	}

	if tun.acceptNATPeer(p, from, EncodePassword("hunter2")) {
		t.Error("a PASSWORD datagram must never itself be forwarded")
	}
	remote := p.endpoint.Remote()
	if remote == nil || !remote.IP.Equal(from.IP) {
		t.Errorf("expected peer to become %v after correct password, got %v", from, remote)
	}
}

func TestAcceptNATPeerWithPasswordRejectsUnknownSource(t *testing.T) {
	p := newTestPath(t, nil)
	tun := &Tunnel{cfg: newConfigWithPassword("hunter2"), log: newTestLogger(t)}

	known := &net.UDPAddr{IP: net.ParseIP("198.51.100.5"), Port: 4500}
	tun.acceptNATPeer(p, known, EncodePassword("hunter2"))

	other := &net.UDPAddr{IP: net.ParseIP("198.51.100.9"), Port: 4500}
	if tun.acceptNATPeer(p, other, []byte("data from impostor")) {
		t.Error("data from a source other than the learned peer must be rejected")
	}
}

func newConfigWithPassword(pw string) *config.Config {
	return &config.Config{Password: pw}
}
