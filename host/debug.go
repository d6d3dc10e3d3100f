package host

import (
	"encoding/binary"
	"io"

	"github.com/efficientgo/core/errors"

	"github.com/ardnew/softcdc/cdc"
	"github.com/ardnew/softcdc/pkg"
)

// DebugClient speaks the framed debug protocol over a Port.
type DebugClient struct {
	port      Port
	maxPacket int
	debugBaud int
}

// NewDebugClient returns a client for port. maxPacket is the device's bulk
// packet size; a command frame must fit in one packet.
func NewDebugClient(port Port, maxPacket int) *DebugClient {
	if maxPacket <= 0 {
		maxPacket = 64
	}
	return &DebugClient{
		port:      port,
		maxPacket: maxPacket,
		debugBaud: cdc.DebugBaudFast,
	}
}

// SetDebugBaud selects the sentinel rate used by EnterDebug. Hosts that
// cannot set arbitrary rates use cdc.DebugBaudSlow.
func (d *DebugClient) SetDebugBaud(baud int) {
	d.debugBaud = baud
}

// EnterDebug switches the device into debug mode.
func (d *DebugClient) EnterDebug() error {
	if err := d.port.SetBaudRate(d.debugBaud); err != nil {
		return errors.Wrap(err, "enter debug mode")
	}
	pkg.LogDebug(pkg.ComponentHost, "debug mode entered", "baud", d.debugBaud)
	return nil
}

// ExitDebug returns the device to the byte stream at baud.
func (d *DebugClient) ExitDebug(baud int) error {
	if err := d.port.SetBaudRate(baud); err != nil {
		return errors.Wrap(err, "exit debug mode")
	}
	pkg.LogDebug(pkg.ComponentHost, "debug mode exited", "baud", baud)
	return nil
}

// Control sends a command frame announcing a data phase of length bytes.
// payload travels in the same packet as the header.
func (d *DebugClient) Control(request uint8, payload []byte, length uint32) error {
	if cdc.DebugCommandHeader+len(payload) > d.maxPacket {
		return errors.Wrapf(pkg.ErrInvalidParameter,
			"command payload of %d bytes exceeds packet", len(payload))
	}
	frame := make([]byte, cdc.DebugCommandHeader, cdc.DebugCommandHeader+len(payload))
	frame[0] = cdc.DebugCommandMarker
	frame[1] = request
	binary.LittleEndian.PutUint32(frame[2:], length)
	frame = append(frame, payload...)

	if _, err := d.port.Write(frame); err != nil {
		return errors.Wrapf(err, "debug command 0x%02x", request)
	}
	return nil
}

// WriteData sends the host-to-device data phase.
func (d *DebugClient) WriteData(data []byte) error {
	for len(data) > 0 {
		n := min(len(data), d.maxPacket)
		if _, err := d.port.Write(data[:n]); err != nil {
			return errors.Wrap(err, "debug data")
		}
		data = data[n:]
	}
	return nil
}

// ReadData reads a device-to-host data phase of n bytes.
func (d *DebugClient) ReadData(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.port, buf); err != nil {
		return nil, errors.Wrapf(err, "debug data (%d bytes)", n)
	}
	return buf, nil
}

// Send runs a complete host-to-device transfer.
func (d *DebugClient) Send(request uint8, data []byte) error {
	if request&cdc.DebugRequestIn != 0 {
		return errors.Wrapf(pkg.ErrInvalidParameter, "request 0x%02x is device-to-host", request)
	}
	if err := d.Control(request, nil, uint32(len(data))); err != nil {
		return err
	}
	return d.WriteData(data)
}

// Receive runs a complete device-to-host transfer of n bytes.
func (d *DebugClient) Receive(request uint8, n int) ([]byte, error) {
	if request&cdc.DebugRequestIn == 0 {
		return nil, errors.Wrapf(pkg.ErrInvalidParameter, "request 0x%02x is host-to-device", request)
	}
	if err := d.Control(request, nil, uint32(n)); err != nil {
		return nil, err
	}
	return d.ReadData(n)
}
