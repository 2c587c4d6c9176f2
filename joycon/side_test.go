package joycon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySide(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		expected Side
	}{
		{
			name:     "left marker",
			payload:  []byte{0x01, 0x00, 0x03, 0x7d, 0x00, 0x67, 0x00},
			expected: SideLeft,
		},
		{
			name:     "right marker",
			payload:  []byte{0x01, 0x00, 0x03, 0x7d, 0x00, 0x66, 0x00},
			expected: SideRight,
		},
		{
			name:     "grab controller marker",
			payload:  []byte{0x01, 0x00, 0x03, 0x7d, 0x00, 0x73, 0x00},
			expected: SideGrabController,
		},
		{
			name:     "unrecognized marker byte",
			payload:  []byte{0x01, 0x00, 0x03, 0x7d, 0x00, 0xab, 0x00},
			expected: SideUnknown,
		},
		{
			name:     "payload exactly six bytes",
			payload:  []byte{0x01, 0x00, 0x03, 0x7d, 0x00, 0x67},
			expected: SideUnknown,
		},
		{
			name:     "empty payload",
			payload:  nil,
			expected: SideUnknown,
		},
		{
			name:     "longer payload with trailing data",
			payload:  []byte{0x01, 0x00, 0x03, 0x7d, 0x00, 0x66, 0x00, 0xde, 0xad, 0xbe, 0xef},
			expected: SideRight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifySide(tt.payload))
		})
	}
}

// Classification depends only on the byte at offset 5; every other byte is
// irrelevant.
func TestClassifySide_IgnoresOtherBytes(t *testing.T) {
	for _, filler := range []byte{0x00, 0x42, 0xff} {
		payload := make([]byte, 10)
		for i := range payload {
			payload[i] = filler
		}
		payload[5] = 0x67
		assert.Equal(t, SideLeft, ClassifySide(payload), "filler 0x%02x", filler)
	}
}

func TestClassifySide_ShortPayloadsAlwaysUnknown(t *testing.T) {
	for length := 0; length < 7; length++ {
		payload := make([]byte, length)
		if length > 5 {
			payload[5] = 0x67
		}
		assert.Equal(t, SideUnknown, ClassifySide(payload), "length %d", length)
	}
}

func TestSideString(t *testing.T) {
	assert.Equal(t, "Left", SideLeft.String())
	assert.Equal(t, "Right", SideRight.String())
	assert.Equal(t, "GrabController", SideGrabController.String())
	assert.Equal(t, "Unknown", SideUnknown.String())
	assert.Equal(t, "Unknown", Side(0x7f).String())
}

func TestSideMarshalText(t *testing.T) {
	b, err := SideRight.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "Right", string(b))
}
