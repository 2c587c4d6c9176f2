package goble

import (
	"slices"
	"strings"

	"github.com/srg/joyc/internal/device"
)

// BLEService is a discovered GATT service. Characteristics is keyed by
// normalized UUID; the map is populated during profile discovery and read
// concurrently afterwards under the connection lock.
type BLEService struct {
	Characteristics map[string]*BLECharacteristic

	uuid      string
	knownName string
}

func (sv *BLEService) UUID() string {
	return sv.uuid
}

func (sv *BLEService) KnownName() string {
	return sv.knownName
}

// GetCharacteristics returns the characteristics sorted by UUID.
func (sv *BLEService) GetCharacteristics() []device.Characteristic {
	out := make([]device.Characteristic, 0, len(sv.Characteristics))
	for _, char := range sv.Characteristics {
		out = append(out, char)
	}
	slices.SortFunc(out, func(a, b device.Characteristic) int {
		return strings.Compare(a.UUID(), b.UUID())
	})
	return out
}
