package l2

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/songgao/water"

	"github.com/jmeyer977/ethudp/internal/platform"
)

// TAPEndpoint is a TAP character device opened via songgao/water. It backs
// config.ModeTAP (with an IP assigned directly) and config.ModeBridge
// (attached to an existing bridge instead). A background goroutine reads
// frames continuously into a buffered channel that RecvFrame drains;
// RawEndpoint, by contrast, reads synchronously inside RecvFrame.
type TAPEndpoint struct {
	iface *water.Interface
	name  string

	frames chan []byte
	errs   chan error
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewTAPEndpoint creates (or attaches to, if name already exists) a TAP
// device named name. An empty name lets the kernel assign one.
func NewTAPEndpoint(name string) (*TAPEndpoint, error) {
	cfg := water.Config{DeviceType: water.TAP}
	if name != "" {
		cfg.Name = name
	}

	iface, err := water.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create tap device: %w", err)
	}

	t := &TAPEndpoint{
		iface:  iface,
		name:   iface.Name(),
		frames: make(chan []byte, 2000),
		errs:   make(chan error, 10),
		done:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.readLoop()
	return t, nil
}

// ConfigureAddress assigns addr/netmask to the device and brings it up,
// for config.ModeTAP.
func (t *TAPEndpoint) ConfigureAddress(addr, netmask string) error {
	return platform.New().ConfigureAddress(t.name, addr, netmask)
}

// AttachToBridge adds the device to bridgeName, for config.ModeBridge.
func (t *TAPEndpoint) AttachToBridge(bridgeName string) error {
	return platform.New().AttachToBridge(t.name, bridgeName)
}

func (t *TAPEndpoint) readLoop() {
	defer t.wg.Done()
	buf := make([]byte, MaxFrameSize)
	for {
		n, err := t.iface.Read(buf)
		if err != nil {
			select {
			case t.errs <- err:
			case <-t.done:
			}
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		select {
		case t.frames <- frame:
		case <-t.done:
			return
		}
	}
}

func (t *TAPEndpoint) RecvFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, io.EOF
	case err := <-t.errs:
		return nil, fmt.Errorf("tap read: %w", err)
	case frame := <-t.frames:
		return frame, nil
	}
}

func (t *TAPEndpoint) SendFrame(frame []byte) error {
	if _, err := t.iface.Write(frame); err != nil {
		return fmt.Errorf("tap write: %w", err)
	}
	return nil
}

func (t *TAPEndpoint) Name() string { return t.name }

func (t *TAPEndpoint) Close() error {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	err := t.iface.Close()
	t.wg.Wait()
	return err
}
