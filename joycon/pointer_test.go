package joycon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointerTracker_FirstUpdateFromOrigin(t *testing.T) {
	var tracker PointerTracker

	delta := tracker.Update(&InputReport{PointerX: 10, PointerY: -5})
	assert.Equal(t, PointerDelta{X: 10, Y: -5}, delta)

	x, y := tracker.Last()
	assert.Equal(t, int16(10), x)
	assert.Equal(t, int16(-5), y)
}

func TestPointerTracker_SubsequentDeltas(t *testing.T) {
	var tracker PointerTracker

	tracker.Update(&InputReport{PointerX: 10, PointerY: -5})

	delta := tracker.Update(&InputReport{PointerX: 7, PointerY: -5})
	assert.Equal(t, PointerDelta{X: -3, Y: 0}, delta)

	delta = tracker.Update(&InputReport{PointerX: 7, PointerY: 20})
	assert.Equal(t, PointerDelta{X: 0, Y: 25}, delta)
}

// Deltas are plain signed differences: a jump across the int16 range is
// reported at full magnitude, not wrapped.
func TestPointerTracker_NoWraparoundCorrection(t *testing.T) {
	var tracker PointerTracker

	tracker.Update(&InputReport{PointerX: -32768, PointerY: 0})
	delta := tracker.Update(&InputReport{PointerX: 32767, PointerY: 0})

	assert.Equal(t, 65535, delta.X)
	assert.Equal(t, 0, delta.Y)
}

func TestPointerTracker_ZeroValueStartsAtOrigin(t *testing.T) {
	var tracker PointerTracker

	x, y := tracker.Last()
	assert.Equal(t, int16(0), x)
	assert.Equal(t, int16(0), y)
}
