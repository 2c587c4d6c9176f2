package goble

import (
	"context"

	"github.com/go-ble/ble"

	"github.com/srg/joyc/internal/device"
)

// bleScanner makes a ble.Device usable as a device.ScanningDevice.
type bleScanner struct {
	dev ble.Device
}

// Scan forwards advertisements to handler, wrapped for the device package.
func (s *bleScanner) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	err := s.dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	})
	return NormalizeError(err)
}

// NewScanner opens the platform BLE device for scanning. Tests swap
// DeviceFactory to scan against the mock transport instead.
func NewScanner() (device.ScanningDevice, error) {
	d, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return &bleScanner{dev: d}, nil
}
