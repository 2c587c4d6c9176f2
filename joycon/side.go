package joycon

// Side identifies which half of a controller pair (or special variant) a
// peripheral represents.
type Side uint8

const (
	SideUnknown Side = iota
	SideLeft
	SideRight
	SideGrabController
)

// Side marker byte advertised at manufacturer payload offset 5.
const (
	sideByteLeft  = 0x67
	sideByteRight = 0x66
	sideByteGrab  = 0x73
)

// ClassifySide derives the controller side from an advertisement
// manufacturer-data payload (company identifier already stripped).
// Payloads shorter than 7 bytes classify as SideUnknown.
func ClassifySide(payload []byte) Side {
	if len(payload) < 7 {
		return SideUnknown
	}
	switch payload[5] {
	case sideByteLeft:
		return SideLeft
	case sideByteRight:
		return SideRight
	case sideByteGrab:
		return SideGrabController
	default:
		return SideUnknown
	}
}

// String returns the human-readable side name
func (s Side) String() string {
	switch s {
	case SideLeft:
		return "Left"
	case SideRight:
		return "Right"
	case SideGrabController:
		return "GrabController"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so Side serializes as its
// name in JSON output.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
