package tunnel

import "github.com/jmeyer977/ethudp/internal/monitor"

// Status implements monitor.StatusSource.
func (t *Tunnel) Status() monitor.Snapshot {
	paths := []monitor.PathSnapshot{pathSnapshot(t.master)}
	if t.slave != nil {
		paths = append(paths, pathSnapshot(t.slave))
	}
	return monitor.Snapshot{Paths: paths}
}

func pathSnapshot(p *path) monitor.PathSnapshot {
	status := "bad"
	if p.isOK() {
		status = "ok"
	}
	remote := ""
	if addr := p.endpoint.Remote(); addr != nil {
		remote = addr.String()
	}
	return monitor.PathSnapshot{
		Role:       p.role.String(),
		Status:     status,
		Remote:     remote,
		FramesSent: p.framesSent.Load(),
		FramesRecv: p.framesRecv.Load(),
		PingSend:   p.pingSend.Load(),
		PongRecv:   p.pongRecv.Load(),
	}
}
