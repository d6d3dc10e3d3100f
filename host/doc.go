// Package host provides host-side access to a softcdc device: a serial
// port adapter for real hardware and a client for the framed debug
// protocol.
//
// A [Port] is anything that carries the CDC byte stream and can drive the
// two line controls the device reacts to: DTR (connection) and the baud
// rate (mode selection). [OpenSerial] returns a Port for a character device
// such as /dev/ttyACM0; the FIFO simulator's host side satisfies the same
// interface.
//
// # Debug Protocol
//
// Selecting a sentinel baud rate switches the device into debug mode.
// Each transfer then starts with a command frame
//
//	0x30, request, length (4 bytes, little-endian), payload...
//
// followed by length bytes of data, sent by the host when request&0x80 is
// clear and by the device when it is set. A device-to-host transfer that
// ends on a packet boundary is terminated with a zero-length packet.
//
//	port, _ := host.OpenSerial("/dev/ttyACM0", 115200)
//	dc := host.NewDebugClient(port, 64)
//	dc.EnterDebug()
//	reply, err := dc.Receive(0x81, 16)
package host
