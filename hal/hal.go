package hal

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants (USB 2.0 Specification).
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	default:
		return "Unknown"
	}
}

// MaxPacketSize returns the bulk endpoint packet size for the speed,
// or 0 when bulk transfers are not available.
func (s Speed) MaxPacketSize() int {
	switch s {
	case SpeedFull:
		return 64
	case SpeedHigh:
		return 512
	default:
		return 0
	}
}

// Transport is the packet-oriented endpoint pair beneath a channel.
//
// The channel owns the buffers it passes in. A transmit buffer must not be
// touched by the channel again until InTransferPending reports false, and a
// receive buffer stays valid until the next EventHandler.OnReceive call.
// Implementations must not call back into the EventHandler from inside a
// Transport method.
type Transport interface {
	// SetTransmitBuffer selects the run that the next TransmitPacket sends.
	// A zero-length buffer sends a zero-length packet.
	SetTransmitBuffer(buf []byte)

	// TransmitPacket starts sending the selected run. It returns an error
	// wrapping pkg.ErrBusy when a previous transfer has not finished.
	TransmitPacket() error

	// SetReceiveBuffer selects where the next OUT packet is written. It may
	// be called while armed; the next packet uses the latest buffer.
	SetReceiveBuffer(buf []byte)

	// ArmReceive allows the controller to accept the next OUT packet.
	ArmReceive()

	// InTransferPending reports whether the last transmit is still in flight.
	InTransferPending() bool

	// MaxPacketSize returns the bulk endpoint packet size in bytes.
	MaxPacketSize() int
}

// EventHandler receives asynchronous events from a Transport.
//
// Calls are made from the controller's event context. Implementations must
// not block.
type EventHandler interface {
	// HandleControl services a class request on the control endpoint.
	// data carries the OUT payload, or the response buffer for IN requests.
	// It returns the number of response bytes written into data.
	HandleControl(request uint8, value uint16, data []byte) int

	// OnReceive reports that n bytes landed in the armed receive buffer.
	// The controller stays disarmed until ArmReceive is called again.
	OnReceive(n int)

	// OnTransmitComplete reports that the last transmit finished.
	OnTransmitComplete()
}
