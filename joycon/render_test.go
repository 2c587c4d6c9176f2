package joycon_test

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/joyc/internal/testutils"
	"github.com/srg/joyc/joycon"
)

func disableColor(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestFormatReport(t *testing.T) {
	// GOAL: Verify the block view renders every report field in its fixed shape
	//
	// TEST SCENARIO: Render a fully populated report → output matches the expected block exactly

	disableColor(t)

	r := &joycon.InputReport{
		PacketID:          0x1234,
		Buttons:           0x00080000,
		LeftStick:         joycon.StickPosition{X: 2048, Y: 1024},
		RightStick:        joycon.StickPosition{X: 4095, Y: 0},
		PointerX:          10,
		PointerY:          -5,
		PointerUnknown:    100,
		PointerDistance:   -200,
		MagX:              1,
		MagY:              2,
		MagZ:              3,
		BatteryVoltageRaw: 4200,
		BatteryCurrentRaw: -150,
		TemperatureRaw:    127,
		AccelX:            100,
		AccelY:            -200,
		AccelZ:            300,
		GyroX:             -1000,
		GyroY:             2000,
		GyroZ:             -3000,
		TriggerLeft:       12,
		TriggerRight:      250,
	}

	out := joycon.FormatReport(r, joycon.PointerDelta{X: 7, Y: -3})

	rule := strings.Repeat("=", 50)
	want := "\n" + rule + "\n" +
		"Joy-Con 2 Data:\n" +
		rule + "\n" +
		"PacketID: 4660\n" +
		"Buttons: 00080000\n" +
		"Pressed: LS\n" +
		"LeftStick: X=2048, Y=1024\n" +
		"RightStick: X=4095, Y=0\n" +
		"Pointer: X=10, Y=-5, DeltaX=7, DeltaY=-3, Unk=100, Distance=-200\n" +
		"Mag: X=1, Y=2, Z=3\n" +
		"Accel: X=100, Y=-200, Z=300\n" +
		"Gyro: X=-1000, Y=2000, Z=-3000\n" +
		"Battery: 4.20V, -1.5mA\n" +
		"Temperature: 26.0°C\n" +
		"Triggers: L=12, R=250\n"

	testutils.NewTextAsserter(t).Assert(out, want)
}

func TestFormatReportNoButtons(t *testing.T) {
	disableColor(t)

	out := joycon.FormatReport(&joycon.InputReport{}, joycon.PointerDelta{})

	assert.Contains(t, out, "Buttons: 00000000\n")
	assert.Contains(t, out, "Pressed: None\n")
	assert.Contains(t, out, "Battery: 0.00V, 0.0mA\n")
	assert.Contains(t, out, "Temperature: 25.0°C\n")
}

func TestFormatReportMultipleButtons(t *testing.T) {
	disableColor(t)

	names := joycon.ButtonNames(0x00080000 | 0x00000800)
	require.Equal(t, []string{"LS", "A"}, names)

	out := joycon.FormatReport(&joycon.InputReport{Buttons: 0x00080800}, joycon.PointerDelta{})
	assert.Contains(t, out, "Pressed: LS, A\n")
}
