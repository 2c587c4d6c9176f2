package device

import (
	"fmt"

	"github.com/srg/joyc/internal/bledb"
)

// NormalizeUUID converts a UUID in any accepted notation to the canonical
// lookup form: lowercase, no dashes, no 0x prefix, with Bluetooth SIG base
// UUIDs collapsed to their 16-bit short form. Vendor 128-bit UUIDs keep
// their full length. Re-exported from bledb so callers of this package
// need no second import.
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}

// NormalizeUUIDs normalizes every element of uuids.
func NormalizeUUIDs(uuids []string) []string {
	return bledb.NormalizeUUIDs(uuids)
}

// ShortenUUID truncates long UUIDs to eight characters for display. Short
// UUIDs pass through.
func ShortenUUID(uuid string) string {
	if len(uuid) <= 8 {
		return uuid
	}
	return uuid[:8]
}

// ValidateUUID normalizes one or more UUID arguments, rejecting empty input.
// The returned slice is in canonical form, same order as the input.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	out := make([]string, 0, len(uuids))
	for i, raw := range uuids {
		if raw == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		norm := NormalizeUUID(raw)
		if norm == "" {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, raw)
		}
		out = append(out, norm)
	}
	return out, nil
}
