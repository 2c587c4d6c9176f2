package joycon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestButtonNames_SingleButtons(t *testing.T) {
	tests := []struct {
		mask     uint32
		expected string
	}{
		{0x80000000, "ZL"},
		{0x40000000, "L"},
		{0x00010000, "SELECT"},
		{0x00080000, "LS"},
		{0x01000000, "↓"},
		{0x02000000, "↑"},
		{0x04000000, "→"},
		{0x08000000, "←"},
		{0x00200000, "CAMERA"},
		{0x10000000, "SR(L)"},
		{0x20000000, "SL(L)"},
		{0x00100000, "HOME"},
		{0x00400000, "CHAT"},
		{0x00020000, "START"},
		{0x00001000, "SR(R)"},
		{0x00002000, "SL(R)"},
		{0x00004000, "R"},
		{0x00008000, "ZR"},
		{0x00040000, "RS"},
		{0x00000100, "Y"},
		{0x00000200, "X"},
		{0x00000400, "B"},
		{0x00000800, "A"},
	}

	assert.Len(t, tests, ButtonCount())

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, []string{tt.expected}, ButtonNames(tt.mask))
		})
	}
}

func TestButtonNames_NoButtons(t *testing.T) {
	assert.Empty(t, ButtonNames(0))
}

func TestButtonNames_UnknownBitsIgnored(t *testing.T) {
	// Bits outside the table produce no names
	assert.Empty(t, ButtonNames(0x00000001))
	assert.Empty(t, ButtonNames(0x00000080))
}

// Emission follows the table's declared order regardless of bit position.
func TestButtonNames_CombinationOrder(t *testing.T) {
	mask := uint32(0x00000800 | 0x80000000 | 0x00100000) // A, ZL, HOME
	assert.Equal(t, []string{"ZL", "HOME", "A"}, ButtonNames(mask))
}

// The result for a mask is a fixed set: repeated decoding yields the same
// names every time.
func TestButtonNames_Deterministic(t *testing.T) {
	mask := uint32(0xFFFFFFFF)

	first := ButtonNames(mask)
	assert.Len(t, first, ButtonCount())

	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ButtonNames(mask))
	}
}

// All masks are single-bit and disjoint, so names can never repeat.
func TestButtonMasksDisjoint(t *testing.T) {
	var seen uint32
	for pair := buttonMasks.Oldest(); pair != nil; pair = pair.Next() {
		assert.NotZero(t, pair.Key, "mask for %s", pair.Value)
		assert.Zero(t, pair.Key&(pair.Key-1), "mask for %s must be single-bit", pair.Value)
		assert.Zero(t, seen&pair.Key, "mask for %s overlaps another entry", pair.Value)
		seen |= pair.Key
	}
}
