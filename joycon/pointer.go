package joycon

// PointerDelta is the pointer motion between two consecutive reports.
type PointerDelta struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PointerTracker computes per-report pointer motion. The zero value tracks
// from position (0, 0). One tracker exists per streaming session; it is
// only touched from the notification path, so it needs no locking.
type PointerTracker struct {
	lastX int16
	lastY int16
}

// Update returns the motion delta between r and the previously observed
// pointer position, then stores r's position. Deltas are plain signed
// differences; no wraparound correction is applied to the 16-bit fields.
func (t *PointerTracker) Update(r *InputReport) PointerDelta {
	d := PointerDelta{
		X: int(r.PointerX) - int(t.lastX),
		Y: int(r.PointerY) - int(t.lastY),
	}
	t.lastX, t.lastY = r.PointerX, r.PointerY
	return d
}

// Last returns the most recently stored pointer position.
func (t *PointerTracker) Last() (x, y int16) {
	return t.lastX, t.lastY
}
