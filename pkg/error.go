package pkg

import "errors"

// Channel errors.
var (
	// ErrTimeout indicates a blocking call ran out of time. The call still
	// reports how many bytes it transferred.
	ErrTimeout = errors.New("transfer timeout")

	// ErrBusy indicates the transport declined a hand-off because a previous
	// transfer is still in flight.
	ErrBusy = errors.New("transport busy")

	// ErrOverflow indicates received data was discarded for lack of headroom.
	ErrOverflow = errors.New("receive overflow")

	// ErrDisconnected indicates no host has asserted DTR.
	ErrDisconnected = errors.New("host not connected")

	// ErrDebugMode indicates the byte stream is suspended because the host
	// selected the debug protocol.
	ErrDebugMode = errors.New("channel in debug mode")

	// ErrCancelled indicates a cancelled transfer.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrProtocol indicates a malformed frame or message.
	ErrProtocol = errors.New("protocol error")

	// ErrNotConfigured indicates the channel or transport has not been initialized.
	ErrNotConfigured = errors.New("not configured")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrAlreadyRunning indicates the component is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrClosed indicates the component has been closed.
	ErrClosed = errors.New("closed")
)

// HandoffStatus represents the outcome of handing a run to the transport.
type HandoffStatus int

// Hand-off status values.
const (
	HandoffAccepted HandoffStatus = iota // Transport took the run
	HandoffBusy                          // Previous transfer still in flight
	HandoffDropped                       // Run abandoned after the completion budget
	HandoffError                         // Transport failed
)

// String returns a string representation of the hand-off status.
func (s HandoffStatus) String() string {
	switch s {
	case HandoffAccepted:
		return "accepted"
	case HandoffBusy:
		return "busy"
	case HandoffDropped:
		return "dropped"
	case HandoffError:
		return "error"
	default:
		return "unknown"
	}
}

// StatusOf maps a transport error onto a hand-off status.
func StatusOf(err error) HandoffStatus {
	switch {
	case err == nil:
		return HandoffAccepted
	case errors.Is(err, ErrBusy):
		return HandoffBusy
	case errors.Is(err, ErrTimeout):
		return HandoffDropped
	default:
		return HandoffError
	}
}
