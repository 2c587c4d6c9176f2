//go:build darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// DeviceFactory opens the darwin HCI transport. Tests swap it for the mock
// transport factory.
//
//nolint:revive // DeviceFactory is swapped by tests, so it stays a var
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}
