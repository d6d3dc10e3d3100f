package host

import (
	"io"

	"github.com/efficientgo/core/errors"
	"go.bug.st/serial"

	"github.com/ardnew/softcdc/pkg"
)

// Port carries the CDC byte stream between host and device.
type Port interface {
	io.ReadWriteCloser

	// SetDTR asserts or clears Data Terminal Ready.
	SetDTR(dtr bool) error

	// SetBaudRate changes the line rate.
	SetBaudRate(baud int) error
}

// SerialPort is a Port backed by an operating system serial device.
type SerialPort struct {
	serial.Port
	name string
	mode serial.Mode
}

// OpenSerial opens name at baud with 8N1 framing and asserts DTR.
func OpenSerial(name string, baud int) (*SerialPort, error) {
	if baud <= 0 {
		return nil, errors.Wrapf(pkg.ErrInvalidParameter, "baud %d", baud)
	}
	mode := serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, &mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	if err := p.SetDTR(true); err != nil {
		p.Close()
		return nil, errors.Wrapf(err, "assert DTR on %s", name)
	}

	pkg.LogInfo(pkg.ComponentHost, "serial port opened",
		"port", name,
		"baud", baud)
	return &SerialPort{Port: p, name: name, mode: mode}, nil
}

// SetBaudRate implements Port.
func (s *SerialPort) SetBaudRate(baud int) error {
	if baud <= 0 {
		return errors.Wrapf(pkg.ErrInvalidParameter, "baud %d", baud)
	}
	mode := s.mode
	mode.BaudRate = baud
	if err := s.Port.SetMode(&mode); err != nil {
		return errors.Wrapf(err, "set %s to %d baud", s.name, baud)
	}
	s.mode = mode
	pkg.LogDebug(pkg.ComponentHost, "baud rate changed",
		"port", s.name,
		"baud", baud)
	return nil
}

// Name returns the device path.
func (s *SerialPort) Name() string {
	return s.name
}

// ListPorts returns the serial devices present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "list serial ports")
	}
	return ports, nil
}

// Compile-time interface check
var _ Port = (*SerialPort)(nil)
