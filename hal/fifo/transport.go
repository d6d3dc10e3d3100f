package fifo

import (
	"context"
	"encoding/binary"
	baseerrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/efficientgo/core/errors"
	"github.com/oklog/run"
	"go.uber.org/atomic"

	"github.com/ardnew/softcdc/hal"
	"github.com/ardnew/softcdc/pkg"
)

// DefaultMaxPacketSize is the full-speed bulk packet size.
var DefaultMaxPacketSize = hal.SpeedFull.MaxPacketSize()

// Transport implements hal.Transport using named pipes.
type Transport struct {
	dir       string
	maxPacket int

	connection      *os.File
	control         *os.File
	controlResponse *os.File
	epOut           *os.File
	epIn            *os.File

	mu      sync.Mutex
	txBuf   []byte
	rxBuf   []byte
	armed   bool
	armCh   chan struct{}
	running bool

	pending atomic.Bool
	txq     chan []byte

	closeCh   chan struct{}
	closeOnce sync.Once
}

// New creates a transport serving the pipes in dir. A non-positive
// maxPacket selects DefaultMaxPacketSize.
func New(dir string, maxPacket int) *Transport {
	if maxPacket <= 0 {
		maxPacket = DefaultMaxPacketSize
	}
	return &Transport{
		dir:       dir,
		maxPacket: maxPacket,
		armCh:     make(chan struct{}, 1),
		txq:       make(chan []byte, 1),
		closeCh:   make(chan struct{}),
	}
}

// Open creates the pipe directory and opens the device ends.
func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.epIn != nil {
		return pkg.ErrAlreadyRunning
	}
	if err := createPipes(t.dir); err != nil {
		return err
	}

	files := []struct {
		name string
		dst  **os.File
	}{
		{pipeConnection, &t.connection},
		{pipeControl, &t.control},
		{pipeControlResponse, &t.controlResponse},
		{pipeOut, &t.epOut},
		{pipeIn, &t.epIn},
	}
	for _, pf := range files {
		f, err := openPipe(t.dir, pf.name)
		if err != nil {
			t.closeFiles()
			return err
		}
		*pf.dst = f
	}

	pkg.LogInfo(pkg.ComponentTransport, "fifo transport opened",
		"dir", t.dir,
		"maxPacket", t.maxPacket)
	return nil
}

// Close stops Run and removes the pipes.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.closeCh) })

	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeFiles()
	for _, name := range pipeNames {
		os.Remove(filepath.Join(t.dir, name))
	}
	return nil
}

func (t *Transport) closeFiles() {
	for _, f := range []**os.File{&t.connection, &t.control, &t.controlResponse, &t.epOut, &t.epIn} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
}

// Dir returns the pipe directory.
func (t *Transport) Dir() string {
	return t.dir
}

// SetTransmitBuffer implements hal.Transport.
func (t *Transport) SetTransmitBuffer(buf []byte) {
	t.mu.Lock()
	t.txBuf = buf
	t.mu.Unlock()
}

// TransmitPacket implements hal.Transport. The run is copied, so the
// caller's buffer is free as soon as this returns; InTransferPending still
// reports the transfer until the last packet is written.
func (t *Transport) TransmitPacket() error {
	if !t.pending.CompareAndSwap(false, true) {
		return fmt.Errorf("ep_in: %w", pkg.ErrBusy)
	}
	t.mu.Lock()
	run := append([]byte(nil), t.txBuf...)
	t.mu.Unlock()
	t.txq <- run
	return nil
}

// SetReceiveBuffer implements hal.Transport.
func (t *Transport) SetReceiveBuffer(buf []byte) {
	t.mu.Lock()
	t.rxBuf = buf
	t.mu.Unlock()
}

// ArmReceive implements hal.Transport.
func (t *Transport) ArmReceive() {
	t.mu.Lock()
	t.armed = true
	t.mu.Unlock()
	select {
	case t.armCh <- struct{}{}:
	default:
	}
}

// InTransferPending implements hal.Transport.
func (t *Transport) InTransferPending() bool {
	return t.pending.Load()
}

// MaxPacketSize implements hal.Transport.
func (t *Transport) MaxPacketSize() int {
	return t.maxPacket
}

// Run signals presence to the host and serves control requests and bulk
// traffic for h until ctx is cancelled or the transport is closed.
func (t *Transport) Run(ctx context.Context, h hal.EventHandler) error {
	t.mu.Lock()
	if t.epIn == nil {
		t.mu.Unlock()
		return pkg.ErrNotConfigured
	}
	if t.running {
		t.mu.Unlock()
		return pkg.ErrAlreadyRunning
	}
	t.running = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	if err := writeFrame(t.connection, msgConnect, nil); err != nil {
		return errors.Wrap(err, "signal connect")
	}
	defer writeFrame(t.connection, msgDisconnect, nil)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g run.Group
	g.Add(func() error {
		return t.serveControl(ctx, h)
	}, func(error) {
		cancel()
	})
	g.Add(func() error {
		return t.serveOut(ctx, h)
	}, func(error) {
		cancel()
	})
	g.Add(func() error {
		return t.serveIn(ctx, h)
	}, func(error) {
		cancel()
	})

	err := g.Run()
	if baseerrors.Is(err, context.Canceled) || baseerrors.Is(err, pkg.ErrClosed) {
		return nil
	}
	return err
}

// serveControl answers class requests from the host.
func (t *Transport) serveControl(ctx context.Context, h hal.EventHandler) error {
	buf := make([]byte, 0xFFFF)
	for {
		typ, payload, err := readFrame(ctx, t.closeCh, t.control, buf)
		if baseerrors.Is(err, pkg.ErrBufferTooSmall) {
			pkg.LogWarn(pkg.ComponentTransport, "oversized control frame dropped")
			continue
		}
		if err != nil {
			return err
		}
		if typ != msgControl || len(payload) < controlHeader {
			pkg.LogWarn(pkg.ComponentTransport, "malformed control frame",
				"type", typ,
				"bytes", len(payload))
			continue
		}

		request := payload[0]
		value := binary.LittleEndian.Uint16(payload[1:3])
		length := int(binary.LittleEndian.Uint16(payload[3:5]))
		data := payload[controlHeader:]
		if length > len(data) {
			data = append(make([]byte, 0, length), data...)
			data = data[:length]
		}

		n := h.HandleControl(request, value, data)
		if err := writeFrame(t.controlResponse, msgResponse, data[:n]); err != nil {
			return errors.Wrap(err, "control response")
		}
		pkg.LogDebug(pkg.ComponentTransport, "control request served",
			"request", request,
			"value", value,
			"response", n)
	}
}

// serveOut delivers host packets into the armed receive buffer.
func (t *Transport) serveOut(ctx context.Context, h hal.EventHandler) error {
	buf := make([]byte, t.maxPacket)
	for {
		typ, payload, err := readFrame(ctx, t.closeCh, t.epOut, buf)
		if baseerrors.Is(err, pkg.ErrBufferTooSmall) {
			pkg.LogWarn(pkg.ComponentTransport, "oversized OUT packet dropped",
				"maxPacket", t.maxPacket)
			continue
		}
		if err != nil {
			return err
		}
		if typ != msgData {
			continue
		}

		dst, err := t.waitArmed(ctx)
		if err != nil {
			return err
		}
		n := copy(dst, payload)
		if n < len(payload) {
			pkg.LogWarn(pkg.ComponentTransport, "OUT packet truncated",
				"bytes", len(payload),
				"room", len(dst))
		}
		h.OnReceive(n)
	}
}

// waitArmed blocks until reception is armed, then disarms it and returns
// the receive buffer.
func (t *Transport) waitArmed(ctx context.Context) ([]byte, error) {
	for {
		t.mu.Lock()
		if t.armed {
			t.armed = false
			buf := t.rxBuf
			t.mu.Unlock()
			return buf, nil
		}
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.closeCh:
			return nil, pkg.ErrClosed
		case <-t.armCh:
		}
	}
}

// serveIn writes handed-off runs to the host as packets.
func (t *Transport) serveIn(ctx context.Context, h hal.EventHandler) error {
	for {
		var data []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.closeCh:
			return pkg.ErrClosed
		case data = <-t.txq:
		}

		// A zero-length run still goes out as one zero-length packet.
		for {
			n := min(len(data), t.maxPacket)
			if err := writeFrame(t.epIn, msgData, data[:n]); err != nil {
				t.pending.Store(false)
				return errors.Wrap(err, "write ep_in")
			}
			data = data[n:]
			if len(data) == 0 {
				break
			}
		}

		t.pending.Store(false)
		h.OnTransmitComplete()
	}
}

// Compile-time interface check
var _ hal.Transport = (*Transport)(nil)
