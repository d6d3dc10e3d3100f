package cdc

// CDC request codes (PSTN120 Table 13).
const (
	RequestSendEncapsulatedCommand = 0x00
	RequestGetEncapsulatedResponse = 0x01
	RequestSetCommFeature          = 0x02
	RequestGetCommFeature          = 0x03
	RequestClearCommFeature        = 0x04
	RequestSetLineCoding           = 0x20
	RequestGetLineCoding           = 0x21
	RequestSetControlLineState     = 0x22
	RequestSendBreak               = 0x23
)

// requestName returns a short name for logging.
func requestName(req uint8) string {
	switch req {
	case RequestSendEncapsulatedCommand:
		return "SEND_ENCAPSULATED_COMMAND"
	case RequestGetEncapsulatedResponse:
		return "GET_ENCAPSULATED_RESPONSE"
	case RequestSetCommFeature:
		return "SET_COMM_FEATURE"
	case RequestGetCommFeature:
		return "GET_COMM_FEATURE"
	case RequestClearCommFeature:
		return "CLEAR_COMM_FEATURE"
	case RequestSetLineCoding:
		return "SET_LINE_CODING"
	case RequestGetLineCoding:
		return "GET_LINE_CODING"
	case RequestSetControlLineState:
		return "SET_CONTROL_LINE_STATE"
	case RequestSendBreak:
		return "SEND_BREAK"
	default:
		return "UNKNOWN"
	}
}

// Control line state bits (for SET_CONTROL_LINE_STATE).
const (
	ControlLineDTR = 1 << 0 // Data Terminal Ready
	ControlLineRTS = 1 << 1 // Request To Send
)

// Sentinel baud rates that switch the channel into debug mode. The slow
// rate exists for hosts that cannot select custom rates.
const (
	DebugBaudSlow = 921600
	DebugBaudFast = 12000000
)

// Debug protocol framing.
const (
	DebugCommandMarker = 0x30 // First byte of a command frame
	DebugCommandHeader = 6    // Marker, request, 4-byte length
	DebugRequestIn     = 0x80 // Request expects a device-to-host data phase
)

// LineCoding represents the serial line configuration.
type LineCoding struct {
	DTERate    uint32 // Data terminal rate (baud rate)
	CharFormat uint8  // Stop bits: 0=1, 1=1.5, 2=2
	ParityType uint8  // Parity: 0=None, 1=Odd, 2=Even, 3=Mark, 4=Space
	DataBits   uint8  // Data bits: 5, 6, 7, 8, or 16
}

// LineCodingSize is the size of LineCoding in bytes.
const LineCodingSize = 7

// Stop bit values.
const (
	StopBits1   = 0 // 1 stop bit
	StopBits1_5 = 1 // 1.5 stop bits
	StopBits2   = 2 // 2 stop bits
)

// Parity values.
const (
	ParityNone  = 0
	ParityOdd   = 1
	ParityEven  = 2
	ParityMark  = 3
	ParitySpace = 4
)

// DefaultBaudRate is reported before the host sets a line coding.
const DefaultBaudRate = 115200

// MarshalTo writes the LineCoding to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (lc *LineCoding) MarshalTo(buf []byte) int {
	if len(buf) < LineCodingSize {
		return 0
	}
	buf[0] = byte(lc.DTERate)
	buf[1] = byte(lc.DTERate >> 8)
	buf[2] = byte(lc.DTERate >> 16)
	buf[3] = byte(lc.DTERate >> 24)
	buf[4] = lc.CharFormat
	buf[5] = lc.ParityType
	buf[6] = lc.DataBits
	return LineCodingSize
}

// ParseLineCoding parses LineCoding from data.
// Only the 4-byte rate is required; missing trailing fields keep the
// values already in out. Returns false if data is too short for the rate.
func ParseLineCoding(data []byte, out *LineCoding) bool {
	if len(data) < 4 {
		return false
	}
	out.DTERate = uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	if len(data) >= LineCodingSize {
		out.CharFormat = data[4]
		out.ParityType = data[5]
		out.DataBits = data[6]
	}
	return true
}

// fixedLineCoding returns the coding reported to the host: the negotiated
// rate with 1 stop bit, no parity, and 8 data bits.
func fixedLineCoding(baud uint32) LineCoding {
	return LineCoding{
		DTERate:    baud,
		CharFormat: StopBits1,
		ParityType: ParityNone,
		DataBits:   8,
	}
}
