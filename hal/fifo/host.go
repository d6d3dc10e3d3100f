package fifo

import (
	"context"
	"encoding/binary"
	baseerrors "errors"
	"os"
	"sync"
	"time"

	"github.com/efficientgo/core/errors"
	"go.uber.org/atomic"

	"github.com/ardnew/softcdc/cdc"
	"github.com/ardnew/softcdc/pkg"
)

// DefaultControlTimeout bounds a control request round trip.
const DefaultControlTimeout = time.Second

// Host is the host side of a FIFO transport. It drives class requests and
// exchanges bulk data the way a CDC ACM host driver would.
type Host struct {
	dir       string
	maxPacket int

	// ControlTimeout bounds each control request round trip.
	ControlTimeout time.Duration

	connection      *os.File
	control         *os.File
	controlResponse *os.File
	epOut           *os.File
	epIn            *os.File

	ctlMu        sync.Mutex
	controlState atomic.Uint32
	respBuf      []byte

	rdMu   sync.Mutex
	rdBuf  []byte
	rdRest []byte

	wrMu sync.Mutex

	closeCh   chan struct{}
	closeOnce sync.Once
}

// OpenHost opens the host ends of the pipes that a device Transport created
// in dir. A non-positive maxPacket selects DefaultMaxPacketSize.
func OpenHost(dir string, maxPacket int) (*Host, error) {
	if maxPacket <= 0 {
		maxPacket = DefaultMaxPacketSize
	}
	h := &Host{
		dir:            dir,
		maxPacket:      maxPacket,
		ControlTimeout: DefaultControlTimeout,
		respBuf:        make([]byte, 0xFFFF),
		rdBuf:          make([]byte, 0xFFFF),
		closeCh:        make(chan struct{}),
	}

	files := []struct {
		name string
		dst  **os.File
	}{
		{pipeConnection, &h.connection},
		{pipeControl, &h.control},
		{pipeControlResponse, &h.controlResponse},
		{pipeOut, &h.epOut},
		{pipeIn, &h.epIn},
	}
	for _, pf := range files {
		f, err := openPipe(dir, pf.name)
		if err != nil {
			h.Close()
			return nil, errors.Wrap(err, "open host")
		}
		*pf.dst = f
	}

	pkg.LogInfo(pkg.ComponentHost, "fifo host opened", "dir", dir)
	return h, nil
}

// WaitConnect blocks until the device signals that it is present.
func (h *Host) WaitConnect(ctx context.Context) error {
	buf := make([]byte, 16)
	for {
		typ, _, err := readFrame(ctx, h.closeCh, h.connection, buf)
		if err != nil {
			return err
		}
		switch typ {
		case msgConnect:
			pkg.LogInfo(pkg.ComponentHost, "device connected", "dir", h.dir)
			return nil
		case msgDisconnect:
			pkg.LogInfo(pkg.ComponentHost, "device disconnected", "dir", h.dir)
		}
	}
}

// Control sends a class request and returns the response data. length is
// the size of the response buffer offered to the device.
func (h *Host) Control(request uint8, value uint16, data []byte, length int) ([]byte, error) {
	if length < 0 || length > 0xFFFF || len(data) > 0xFFFF-controlHeader {
		return nil, pkg.ErrInvalidParameter
	}
	payload := make([]byte, controlHeader, controlHeader+len(data))
	payload[0] = request
	binary.LittleEndian.PutUint16(payload[1:3], value)
	binary.LittleEndian.PutUint16(payload[3:5], uint16(length))
	payload = append(payload, data...)

	h.ctlMu.Lock()
	defer h.ctlMu.Unlock()

	if err := writeFrame(h.control, msgControl, payload); err != nil {
		return nil, errors.Wrapf(err, "control request 0x%02x", request)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.ControlTimeout)
	defer cancel()
	for {
		typ, resp, err := readFrame(ctx, h.closeCh, h.controlResponse, h.respBuf)
		if baseerrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrapf(pkg.ErrTimeout, "control request 0x%02x", request)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "control request 0x%02x", request)
		}
		if typ == msgResponse {
			return append([]byte(nil), resp...), nil
		}
	}
}

// SetLineCoding sends SET_LINE_CODING with 8N1 at baud.
func (h *Host) SetLineCoding(baud uint32) error {
	lc := cdc.LineCoding{
		DTERate:    baud,
		CharFormat: cdc.StopBits1,
		ParityType: cdc.ParityNone,
		DataBits:   8,
	}
	buf := make([]byte, cdc.LineCodingSize)
	lc.MarshalTo(buf)
	_, err := h.Control(cdc.RequestSetLineCoding, 0, buf, 0)
	return err
}

// GetLineCoding sends GET_LINE_CODING.
func (h *Host) GetLineCoding() (cdc.LineCoding, error) {
	var lc cdc.LineCoding
	resp, err := h.Control(cdc.RequestGetLineCoding, 0, nil, cdc.LineCodingSize)
	if err != nil {
		return lc, err
	}
	if !cdc.ParseLineCoding(resp, &lc) {
		return lc, errors.Wrapf(pkg.ErrProtocol, "line coding of %d bytes", len(resp))
	}
	return lc, nil
}

// SetControlLineState sends SET_CONTROL_LINE_STATE with bits.
func (h *Host) SetControlLineState(bits uint16) error {
	if _, err := h.Control(cdc.RequestSetControlLineState, bits, nil, 0); err != nil {
		return err
	}
	h.controlState.Store(uint32(bits))
	return nil
}

// SetDTR asserts or clears DTR, keeping RTS as last set.
func (h *Host) SetDTR(dtr bool) error {
	bits := uint16(h.controlState.Load()) &^ cdc.ControlLineDTR
	if dtr {
		bits |= cdc.ControlLineDTR
	}
	return h.SetControlLineState(bits)
}

// SetBaudRate sets the line rate. Sentinel rates switch the device into
// debug mode.
func (h *Host) SetBaudRate(baud int) error {
	if baud <= 0 {
		return pkg.ErrInvalidParameter
	}
	return h.SetLineCoding(uint32(baud))
}

// Read returns bulk IN data as a byte stream. Packet boundaries are not
// preserved and zero-length packets are skipped. Read blocks until data
// arrives or the host is closed.
func (h *Host) Read(p []byte) (int, error) {
	return h.ReadContext(context.Background(), p)
}

// ReadContext is Read with cancellation.
func (h *Host) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	h.rdMu.Lock()
	defer h.rdMu.Unlock()

	for len(h.rdRest) == 0 {
		typ, data, err := readFrame(ctx, h.closeCh, h.epIn, h.rdBuf)
		if err != nil {
			return 0, err
		}
		if typ == msgData {
			h.rdRest = data
		}
	}
	n := copy(p, h.rdRest)
	h.rdRest = h.rdRest[n:]
	return n, nil
}

// ReadPacket returns the next bulk IN packet, including zero-length ones.
// It must not be mixed with Read on the same host.
func (h *Host) ReadPacket(ctx context.Context) ([]byte, error) {
	h.rdMu.Lock()
	defer h.rdMu.Unlock()
	for {
		typ, data, err := readFrame(ctx, h.closeCh, h.epIn, h.rdBuf)
		if err != nil {
			return nil, err
		}
		if typ == msgData {
			return append([]byte(nil), data...), nil
		}
	}
}

// Write sends p as bulk OUT packets.
func (h *Host) Write(p []byte) (int, error) {
	h.wrMu.Lock()
	defer h.wrMu.Unlock()

	select {
	case <-h.closeCh:
		return 0, pkg.ErrClosed
	default:
	}

	written := 0
	for written < len(p) {
		n := min(len(p)-written, h.maxPacket)
		if err := writeFrame(h.epOut, msgData, p[written:written+n]); err != nil {
			return written, errors.Wrap(err, "write ep_out")
		}
		written += n
	}
	return written, nil
}

// WritePacket sends p as a single bulk OUT packet.
func (h *Host) WritePacket(p []byte) error {
	if len(p) > h.maxPacket {
		return errors.Wrapf(pkg.ErrInvalidParameter, "packet of %d bytes", len(p))
	}
	h.wrMu.Lock()
	defer h.wrMu.Unlock()
	return writeFrame(h.epOut, msgData, p)
}

// Close releases the host ends. Blocked reads return pkg.ErrClosed.
func (h *Host) Close() error {
	h.closeOnce.Do(func() { close(h.closeCh) })
	for _, f := range []*os.File{h.connection, h.control, h.controlResponse, h.epOut, h.epIn} {
		if f != nil {
			f.Close()
		}
	}
	return nil
}
