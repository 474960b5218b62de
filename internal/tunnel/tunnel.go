// Package tunnel wires together the Tap Endpoint, UDP Endpoint(s),
// Cipher, MSS Clamp, and Loopback Filter into the running control plane
// described in spec.md §4 and §5.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmeyer977/ethudp/internal/cipher"
	"github.com/jmeyer977/ethudp/internal/config"
	"github.com/jmeyer977/ethudp/internal/l2"
	"github.com/jmeyer977/ethudp/internal/logging"
	"github.com/jmeyer977/ethudp/internal/loopback"
	"github.com/jmeyer977/ethudp/internal/mss"
	"github.com/jmeyer977/ethudp/internal/transport"
)

// ticksBadAfter/ticksGoodAfter set the hysteresis band for OK<->BAD
// transitions: a path goes bad once its ticket has run more than
// ticksBadAfter ticks ahead of the last observed pong, and is declared
// good again once it is fewer than ticksGoodAfter ticks ahead.
const (
	ticksBadAfter  = 5
	ticksGoodAfter = 4

	reportIntervalTicks = 3600
)

// Tunnel is one running EthUDP instance: a Tap Endpoint feeding one or
// two UDP paths, with the control plane deciding which path frames
// currently go out on.
type Tunnel struct {
	cfg    *config.Config
	log    *logging.Logger
	tap    l2.Endpoint
	cipher cipher.Cipher

	master *path
	slave  *path // nil unless cfg.MasterSlave()

	currentRemote atomic.Int32 // Role

	peerIPs []net.IP

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New assembles a Tunnel from its already-open components. The caller
// is responsible for opening tap and the UDP sockets per cfg and closing
// them after Run returns.
func New(cfg *config.Config, log *logging.Logger, tap l2.Endpoint, c cipher.Cipher, master *transport.Endpoint, slave *transport.Endpoint) *Tunnel {
	t := &Tunnel{
		cfg:    cfg,
		log:    log,
		tap:    tap,
		cipher: c,
	}
	t.master = newPath(RoleMaster, master, transportFamilyOf(master.LocalAddr()))
	t.currentRemote.Store(int32(RoleMaster))

	t.peerIPs = append(t.peerIPs, hostIP(cfg.Master.RemoteIP))
	if slave != nil {
		t.slave = newPath(RoleSlave, slave, transportFamilyOf(slave.LocalAddr()))
		t.peerIPs = append(t.peerIPs, hostIP(cfg.Slave.RemoteIP))
	}
	return t
}

func hostIP(s string) net.IP {
	if ip := net.ParseIP(s); ip != nil {
		return ip
	}
	addrs, err := net.LookupIP(s)
	if err != nil || len(addrs) == 0 {
		return nil
	}
	return addrs[0]
}

// Run starts all tunnel goroutines and blocks until ctx is canceled or an
// unrecoverable error occurs on the Tap Endpoint.
func (t *Tunnel) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	defer cancel()

	errCh := make(chan error, 1)

	t.wg.Add(1)
	go t.tapToUDPLoop(ctx, errCh)

	t.wg.Add(1)
	go t.udpToTapLoop(ctx, t.master)
	if t.slave != nil {
		t.wg.Add(1)
		go t.udpToTapLoop(ctx, t.slave)
	}

	t.wg.Add(1)
	go t.controlLoop(ctx)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}
	t.wg.Wait()
	return runErr
}

// Stop cancels all tunnel goroutines started by Run.
func (t *Tunnel) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

// activePath returns whichever path the control plane has currently
// selected for outbound frames, per master_slave failover.
func (t *Tunnel) activePath() *path {
	if t.slave == nil {
		return t.master
	}
	if Role(t.currentRemote.Load()) == RoleSlave {
		return t.slave
	}
	return t.master
}

func (t *Tunnel) tapToUDPLoop(ctx context.Context, errCh chan<- error) {
	defer t.wg.Done()
	for {
		frame, err := t.tap.RecvFrame(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			select {
			case errCh <- fmt.Errorf("tap endpoint %s: %w", t.tap.Name(), err):
			default:
			}
			return
		}

		if t.cfg.WriteOnly {
			continue
		}
		if t.cfg.LoopbackCheckEnabled() && loopback.Check(frame, t.peerIPs) {
			continue
		}

		p := t.activePath()

		if t.cfg.FixMSS && !t.cfg.ReadOnly {
			mss.Clamp(frame, p.transportFamily)
		}

		payload := t.cipher.Encrypt(frame)
		if err := p.endpoint.Send(payload); err != nil {
			t.log.Debug("send to remote failed", logging.Fields{"path": p.role.String(), "error": err.Error()})
			continue
		}
		p.framesSent.Add(1)
		p.bytesSent.Add(uint64(len(frame)))
	}
}

func (t *Tunnel) udpToTapLoop(ctx context.Context, p *path) {
	defer t.wg.Done()
	buf := make([]byte, l2.MaxFrameSize)

	for {
		n, from, err := p.endpoint.Recv(ctx, buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			t.log.Debug("recv from remote failed", logging.Fields{"path": p.role.String(), "error": err.Error()})
			continue
		}
		if n <= 0 {
			continue
		}

		payload := t.cipher.Decrypt(buf[:n])
		if len(payload) == 0 {
			continue
		}

		if p.endpoint.NATMode() {
			if !t.acceptNATPeer(p, from, payload) {
				continue
			}
		}

		switch Classify(payload) {
		case KindPassword:
			continue // consumed by acceptNATPeer, or irrelevant on a non-NAT path
		case KindPing:
			p.pingRecv.Add(1)
			if !p.endpoint.NATMode() {
				pong := t.cipher.Encrypt(EncodePong())
				if err := p.endpoint.Send(pong); err == nil {
					p.pongSend.Add(1)
				}
			}
			continue
		case KindPong:
			p.pongRecv.Add(1)
			p.lastPong.Store(p.ticket.Load())
			continue
		}

		if t.cfg.ReadOnly {
			continue
		}
		if !t.cfg.WriteOnly && t.cfg.FixMSS {
			mss.Clamp(payload, p.transportFamily)
		}
		if err := t.tap.SendFrame(payload); err != nil {
			t.log.Debug("tap write failed", logging.Fields{"error": err.Error()})
			continue
		}
		p.framesRecv.Add(1)
		p.bytesRecv.Add(uint64(len(payload)))
	}
}

// acceptNATPeer implements the NAT peer-learning rule (spec.md §4.2): with
// no password configured, any source becomes the new peer (dropping the
// PASSWORD datagram itself); with a password configured, only an exact
// PASSWORD match updates the peer, and any other datagram must already
// match the stored peer.
func (t *Tunnel) acceptNATPeer(p *path, from *net.UDPAddr, payload []byte) bool {
	if t.cfg.Password == "" {
		p.endpoint.UpdateRemote(from)
		return Classify(payload) != KindPassword
	}

	if Classify(payload) == KindPassword {
		if PasswordMatches(payload, t.cfg.Password) {
			p.endpoint.UpdateRemote(from)
		}
		return false
	}

	remote := p.endpoint.Remote()
	if remote != nil && remote.IP.Equal(from.IP) && remote.Port == from.Port {
		return true
	}
	t.log.Debug("dropping datagram from unknown NAT source", logging.Fields{"path": p.role.String(), "from": from.String()})
	return false
}

// controlLoop runs the once-per-second keepalive tick and the hourly
// traffic report (spec.md §4.5).
func (t *Tunnel) controlLoop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *Tunnel) tick() {
	t.tickPath(t.master)
	if t.slave != nil {
		t.tickPath(t.slave)
	}
}

func (t *Tunnel) tickPath(p *path) {
	ticket := p.ticket.Add(1)

	if !p.endpoint.NATMode() {
		if t.cfg.Password != "" {
			if err := p.endpoint.Send(t.cipher.Encrypt(EncodePassword(t.cfg.Password))); err != nil {
				t.log.Debug("password send failed", logging.Fields{"path": p.role.String(), "error": err.Error()})
			}
		}
		if err := p.endpoint.Send(t.cipher.Encrypt(EncodePing())); err == nil {
			p.pingSend.Add(1)
		}
	}

	lastPong := p.lastPong.Load()
	wasOK := p.isOK()

	switch {
	case wasOK && ticket > lastPong+ticksBadAfter:
		p.status.Store(int32(statusBad))
		t.log.Info("path degraded", logging.Fields{"path": p.role.String(), "ticket": ticket, "last_pong": lastPong})
		if t.cfg.MasterSlave() && p.role == RoleMaster {
			t.currentRemote.Store(int32(RoleSlave))
		}
	case !wasOK && ticket < lastPong+ticksGoodAfter:
		p.status.Store(int32(statusOK))
		t.log.Info("path recovered", logging.Fields{"path": p.role.String(), "ticket": ticket, "last_pong": lastPong})
		if p.role == RoleMaster {
			t.currentRemote.Store(int32(RoleMaster))
		}
	}

	if ticket%reportIntervalTicks == 0 {
		t.reportPath(p)
	}
}

func (t *Tunnel) reportPath(p *path) {
	status := "bad"
	if p.isOK() {
		status = "ok"
	}
	t.log.Info("hourly traffic report", logging.Fields{
		"path":        p.role.String(),
		"status":      status,
		"frames_sent": p.framesSent.Swap(0),
		"frames_recv": p.framesRecv.Swap(0),
		"bytes_sent":  p.bytesSent.Swap(0),
		"bytes_recv":  p.bytesRecv.Swap(0),
		"ping_send":   p.pingSend.Swap(0),
		"ping_recv":   p.pingRecv.Swap(0),
		"pong_send":   p.pongSend.Swap(0),
		"pong_recv":   p.pongRecv.Swap(0),
	})
}

// ReportNow forces an immediate hourly-style report on every path,
// triggered by the operator signal described in spec.md §7.
func (t *Tunnel) ReportNow() {
	t.reportPath(t.master)
	if t.slave != nil {
		t.reportPath(t.slave)
	}
}
