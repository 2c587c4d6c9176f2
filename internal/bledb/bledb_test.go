package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"16-bit short form", "1812", "1812"},
		{"0x prefix stripped", "0x2a4d", "2a4d"},
		{"uppercase folded", "FFF0", "fff0"},
		{"surrounding whitespace trimmed", "  180f ", "180f"},
		{"SIG base UUID reduced to short form", "00001812-0000-1000-8000-00805f9b34fb", "1812"},
		{"SIG base UUID without dashes", "00002a1900001000800000805f9b34fb", "2a19"},
		{"braces removed", "{0000180f-0000-1000-8000-00805f9b34fb}", "180f"},
		{"vendor 128-bit UUID keeps full form", "649d4ac9-8eb7-4e6c-af44-1ea54fe5f005", "649d4ac98eb74e6caf441ea54fe5f005"},
		{"non-SIG prefix keeps full form", "12341812-0000-1000-8000-00805f9b34fb", "1234181200001000800000805f9b34fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeUUID(tt.input))
		})
	}
}

func TestNormalizeUUIDs(t *testing.T) {
	assert.Nil(t, NormalizeUUIDs(nil), "nil input MUST stay nil")
	assert.Equal(t,
		[]string{"1812", "180f", "649d4ac98eb74e6caf441ea54fe5f005"},
		NormalizeUUIDs([]string{"0x1812", "0000180F-0000-1000-8000-00805F9B34FB", "649D4AC9-8EB7-4E6C-AF44-1EA54FE5F005"}),
	)
}

func TestLookupService(t *testing.T) {
	tests := []struct {
		name string
		uuid string
		want string
	}{
		{"HID service by short form", "1812", "Human Interface Device"},
		{"HID service by full SIG UUID", "00001812-0000-1000-8000-00805f9b34fb", "Human Interface Device"},
		{"battery service", "180f", "Battery Service"},
		{"generic access with 0x prefix", "0x1800", "Generic Access"},
		{"unknown service", "ffff", ""},
		{"vendor service has no assigned name", "fff0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LookupService(tt.uuid))
		})
	}
}

func TestLookupCharacteristic(t *testing.T) {
	tests := []struct {
		name string
		uuid string
		want string
	}{
		{"battery level", "2a19", "Battery Level"},
		{"battery level by full SIG UUID", "00002a19-0000-1000-8000-00805f9b34fb", "Battery Level"},
		{"HID report", "2a4d", "Report"},
		{"report map", "0x2a4b", "Report Map"},
		{"device name", "2a00", "Device Name"},
		{"Joy-Con 2 command by dashed vendor UUID", "649d4ac9-8eb7-4e6c-af44-1ea54fe5f005", "Joy-Con 2 Command"},
		{"Joy-Con 2 input report by bare vendor UUID", "ab7de9be89fe49ad828f118f09df7fd2", "Joy-Con 2 Input Report"},
		{"unknown characteristic", "2aff", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LookupCharacteristic(tt.uuid))
		})
	}
}

func TestLookupDescriptor(t *testing.T) {
	tests := []struct {
		name string
		uuid string
		want string
	}{
		{"CCCD short form", "2902", "Client Characteristic Configuration"},
		{"CCCD full SIG UUID", "00002902-0000-1000-8000-00805f9b34fb", "Client Characteristic Configuration"},
		{"report reference", "2908", "Report Reference"},
		{"user descriptor", "2901", "Characteristic User Descriptor"},
		{"unknown descriptor", "29ff", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LookupDescriptor(tt.uuid))
		})
	}
}

func TestLookupCompany(t *testing.T) {
	assert.Equal(t, "Nintendo Co., Ltd.", LookupCompany(0x0553))
	assert.Equal(t, "Apple, Inc.", LookupCompany(0x004c))
	assert.Equal(t, "", LookupCompany(0xfffe))
}

func TestLookupAppearanceCode(t *testing.T) {
	assert.Equal(t, "Gamepad", LookupAppearanceCode(0x03c4))
	assert.Equal(t, "Joystick", LookupAppearanceCode(0x03c3))
	assert.Equal(t, "", LookupAppearanceCode(0x1234))
}

func TestDataVersion(t *testing.T) {
	assert.NotEmpty(t, DataVersion)
}
