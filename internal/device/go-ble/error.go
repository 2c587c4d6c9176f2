package goble

import (
	"fmt"
	"strings"

	"github.com/srg/joyc/internal/device"
)

// errorPatterns maps substrings of go-ble error messages to the sentinel
// errors of the device package. Matching is case-insensitive; first match
// wins. The "is bluetooth turned on" entry covers the CoreBluetooth invalid
// state message regardless of which state numbers it reports.
var errorPatterns = []struct {
	substr   string
	sentinel error
}{
	{"is bluetooth turned on", device.ErrBluetoothOff},
	{"bluetooth is turned off", device.ErrBluetoothOff},
	{"device not connected", device.ErrNotConnected},
	{"disconnected", device.ErrNotConnected},
	{"device already connected", device.ErrAlreadyConnected},
	{"connection is not initialized", device.ErrNotInitialized},
}

// NormalizeError wraps known go-ble failures with the matching sentinel so
// callers can errors.Is against device.Err* instead of matching message
// strings. Unrecognized errors pass through unchanged.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(msg, p.substr) {
			return fmt.Errorf("%w: %v", p.sentinel, err)
		}
	}
	return err
}
