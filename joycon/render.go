package joycon

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var pressedColor = color.New(color.FgGreen, color.Bold)

// FormatReport renders one report as a multi-line text block. Raw sensor
// values are printed alongside the converted battery, current, and
// temperature readings. Pressed button names are highlighted when stdout is
// a terminal.
func FormatReport(r *InputReport, delta PointerDelta) string {
	var b strings.Builder

	rule := strings.Repeat("=", 50)
	fmt.Fprintf(&b, "\n%s\n", rule)
	fmt.Fprintf(&b, "Joy-Con 2 Data:\n")
	fmt.Fprintf(&b, "%s\n", rule)

	fmt.Fprintf(&b, "PacketID: %d\n", r.PacketID)
	fmt.Fprintf(&b, "Buttons: %08X\n", r.Buttons)

	if names := r.PressedButtons(); len(names) > 0 {
		fmt.Fprintf(&b, "Pressed: %s\n", pressedColor.Sprint(strings.Join(names, ", ")))
	} else {
		fmt.Fprintf(&b, "Pressed: None\n")
	}

	fmt.Fprintf(&b, "LeftStick: X=%d, Y=%d\n", r.LeftStick.X, r.LeftStick.Y)
	fmt.Fprintf(&b, "RightStick: X=%d, Y=%d\n", r.RightStick.X, r.RightStick.Y)
	fmt.Fprintf(&b, "Pointer: X=%d, Y=%d, DeltaX=%d, DeltaY=%d, Unk=%d, Distance=%d\n",
		r.PointerX, r.PointerY, delta.X, delta.Y, r.PointerUnknown, r.PointerDistance)
	fmt.Fprintf(&b, "Mag: X=%d, Y=%d, Z=%d\n", r.MagX, r.MagY, r.MagZ)
	fmt.Fprintf(&b, "Accel: X=%d, Y=%d, Z=%d\n", r.AccelX, r.AccelY, r.AccelZ)
	fmt.Fprintf(&b, "Gyro: X=%d, Y=%d, Z=%d\n", r.GyroX, r.GyroY, r.GyroZ)
	fmt.Fprintf(&b, "Battery: %.2fV, %.1fmA\n", r.BatteryVolts(), r.BatteryMilliamps())
	fmt.Fprintf(&b, "Temperature: %.1f°C\n", r.TemperatureCelsius())
	fmt.Fprintf(&b, "Triggers: L=%d, R=%d\n", r.TriggerLeft, r.TriggerRight)

	return b.String()
}
