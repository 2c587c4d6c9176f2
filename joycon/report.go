package joycon

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Input report layout. All multi-byte fields are little-endian; offsets are
// fixed across firmware revisions observed so far.
const (
	offPacketID        = 0x00 // 3 bytes unsigned
	offButtons         = 0x03 // 4 bytes unsigned
	offLeftStick       = 0x0A // 3 bytes, packed 12+12 bit
	offRightStick      = 0x0D // 3 bytes, packed 12+12 bit
	offPointerX        = 0x10 // 2 bytes signed
	offPointerY        = 0x12 // 2 bytes signed
	offPointerUnknown  = 0x14 // 2 bytes signed
	offPointerDistance = 0x16 // 2 bytes signed
	offMagX            = 0x18 // 2 bytes signed
	offMagY            = 0x1A // 2 bytes signed
	offMagZ            = 0x1C // 2 bytes signed
	offBatteryVoltage  = 0x1F // 2 bytes unsigned, millivolts
	offBatteryCurrent  = 0x28 // 2 bytes signed, 10 microamp units
	offTemperature     = 0x2E // 2 bytes signed, 1/127 degC above 25
	offAccelX          = 0x30 // 2 bytes signed
	offAccelY          = 0x32 // 2 bytes signed
	offAccelZ          = 0x34 // 2 bytes signed
	offGyroX           = 0x36 // 2 bytes signed
	offGyroY           = 0x38 // 2 bytes signed
	offGyroZ           = 0x3A // 2 bytes signed
	offTriggerLeft     = 0x3C // 1 byte unsigned
	offTriggerRight    = 0x3D // 1 byte unsigned
)

// MinReportLen is the minimum notification payload length the decoder
// accepts. Shorter payloads are rejected whole, never partially decoded.
const MinReportLen = 0x3E

// DecodeError reports a notification payload the decoder rejected.
// Raw carries the offending bytes for diagnostics.
type DecodeError struct {
	Len int
	Raw []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("input report too short: %d bytes, need at least %d (raw %s)",
		e.Len, MinReportLen, hex.EncodeToString(e.Raw))
}

// StickPosition holds one analog stick's unpacked 12-bit axes.
type StickPosition struct {
	X uint16 `json:"x"`
	Y uint16 `json:"y"`
}

// InputReport is one decoded telemetry notification. Values are raw sensor
// units as transmitted; use the conversion methods for physical quantities.
type InputReport struct {
	PacketID uint32 `json:"packet_id"`
	Buttons  uint32 `json:"buttons"`

	LeftStick  StickPosition `json:"left_stick"`
	RightStick StickPosition `json:"right_stick"`

	PointerX        int16 `json:"pointer_x"`
	PointerY        int16 `json:"pointer_y"`
	PointerUnknown  int16 `json:"pointer_unknown"`
	PointerDistance int16 `json:"pointer_distance"`

	MagX int16 `json:"mag_x"`
	MagY int16 `json:"mag_y"`
	MagZ int16 `json:"mag_z"`

	BatteryVoltageRaw uint16 `json:"battery_voltage_raw"`
	BatteryCurrentRaw int16  `json:"battery_current_raw"`
	TemperatureRaw    int16  `json:"temperature_raw"`

	AccelX int16 `json:"accel_x"`
	AccelY int16 `json:"accel_y"`
	AccelZ int16 `json:"accel_z"`

	GyroX int16 `json:"gyro_x"`
	GyroY int16 `json:"gyro_y"`
	GyroZ int16 `json:"gyro_z"`

	TriggerLeft  uint8 `json:"trigger_left"`
	TriggerRight uint8 `json:"trigger_right"`
}

// DecodeInputReport decodes one notification payload into an InputReport.
// Returns *DecodeError if the payload is shorter than MinReportLen.
func DecodeInputReport(data []byte) (*InputReport, error) {
	if len(data) < MinReportLen {
		return nil, &DecodeError{Len: len(data), Raw: data}
	}

	return &InputReport{
		PacketID: uint24(data, offPacketID),
		Buttons:  binary.LittleEndian.Uint32(data[offButtons:]),

		LeftStick:  unpackStick(data, offLeftStick),
		RightStick: unpackStick(data, offRightStick),

		PointerX:        int16At(data, offPointerX),
		PointerY:        int16At(data, offPointerY),
		PointerUnknown:  int16At(data, offPointerUnknown),
		PointerDistance: int16At(data, offPointerDistance),

		MagX: int16At(data, offMagX),
		MagY: int16At(data, offMagY),
		MagZ: int16At(data, offMagZ),

		BatteryVoltageRaw: binary.LittleEndian.Uint16(data[offBatteryVoltage:]),
		BatteryCurrentRaw: int16At(data, offBatteryCurrent),
		TemperatureRaw:    int16At(data, offTemperature),

		AccelX: int16At(data, offAccelX),
		AccelY: int16At(data, offAccelY),
		AccelZ: int16At(data, offAccelZ),

		GyroX: int16At(data, offGyroX),
		GyroY: int16At(data, offGyroY),
		GyroZ: int16At(data, offGyroZ),

		TriggerLeft:  data[offTriggerLeft],
		TriggerRight: data[offTriggerRight],
	}, nil
}

// BatteryVolts returns the battery voltage in volts (raw is millivolts).
func (r *InputReport) BatteryVolts() float64 {
	return float64(r.BatteryVoltageRaw) / 1000
}

// BatteryMilliamps returns the battery current in milliamps.
func (r *InputReport) BatteryMilliamps() float64 {
	return float64(r.BatteryCurrentRaw) / 100
}

// TemperatureCelsius returns the controller temperature in degrees Celsius.
func (r *InputReport) TemperatureCelsius() float64 {
	return 25 + float64(r.TemperatureRaw)/127
}

// PressedButtons returns the names of all held buttons in display order.
func (r *InputReport) PressedButtons() []string {
	return ButtonNames(r.Buttons)
}

// unpackStick reads a 3-byte packed stick field: 24-bit little-endian value
// holding two 12-bit axes, X in the low bits.
func unpackStick(data []byte, offset int) StickPosition {
	v := uint24(data, offset)
	return StickPosition{
		X: uint16(v & 0xFFF),
		Y: uint16((v >> 12) & 0xFFF),
	}
}

func uint24(data []byte, offset int) uint32 {
	return uint32(data[offset]) | uint32(data[offset+1])<<8 | uint32(data[offset+2])<<16
}

func int16At(data []byte, offset int) int16 {
	return int16(binary.LittleEndian.Uint16(data[offset:]))
}
