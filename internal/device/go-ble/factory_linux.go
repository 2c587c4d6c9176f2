//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// DeviceFactory opens the linux HCI transport. Tests swap it for the mock
// transport factory.
//
//nolint:revive // DeviceFactory is swapped by tests, so it stays a var
var DeviceFactory = func() (ble.Device, error) {
	return linux.NewDevice()
}
