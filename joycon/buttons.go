package joycon

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// buttonMasks maps each single-bit button mask within the 32-bit buttons
// field to its display name. Insertion order is the display order. Masks are
// disjoint, so a name never repeats.
var buttonMasks = newButtonTable()

func newButtonTable() *orderedmap.OrderedMap[uint32, string] {
	m := orderedmap.New[uint32, string]()
	m.Set(0x80000000, "ZL")
	m.Set(0x40000000, "L")
	m.Set(0x00010000, "SELECT")
	m.Set(0x00080000, "LS")
	m.Set(0x01000000, "↓")
	m.Set(0x02000000, "↑")
	m.Set(0x04000000, "→")
	m.Set(0x08000000, "←")
	m.Set(0x00200000, "CAMERA")
	m.Set(0x10000000, "SR(L)")
	m.Set(0x20000000, "SL(L)")
	m.Set(0x00100000, "HOME")
	m.Set(0x00400000, "CHAT")
	m.Set(0x00020000, "START")
	m.Set(0x00001000, "SR(R)")
	m.Set(0x00002000, "SL(R)")
	m.Set(0x00004000, "R")
	m.Set(0x00008000, "ZR")
	m.Set(0x00040000, "RS")
	m.Set(0x00000100, "Y")
	m.Set(0x00000200, "X")
	m.Set(0x00000400, "B")
	m.Set(0x00000800, "A")
	return m
}

// ButtonNames returns the display names of all buttons set in mask, in the
// table's declared order.
func ButtonNames(mask uint32) []string {
	var names []string
	for pair := buttonMasks.Oldest(); pair != nil; pair = pair.Next() {
		if mask&pair.Key != 0 {
			names = append(names, pair.Value)
		}
	}
	return names
}

// ButtonCount reports the number of known button masks.
func ButtonCount() int {
	return buttonMasks.Len()
}
