// Package devicefactory is the single place the rest of the module asks for
// device instances, so tests can swap the scanning transport in one spot.
package devicefactory

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/joyc/internal/device"
	goble "github.com/srg/joyc/internal/device/go-ble"
)

// DeviceFactory returns the scanning transport. Package variable so the mock
// peripheral suite can substitute its own during tests.
var DeviceFactory = func() (device.ScanningDevice, error) {
	return goble.NewScanner()
}

// NewDevice creates a device known only by address, for connecting without a
// prior scan.
func NewDevice(address string, logger *logrus.Logger) device.Device {
	return goble.NewBLEDevice(address, logger)
}

// NewDeviceFromAdvertisement creates a device seeded from a scan result.
func NewDeviceFromAdvertisement(adv device.Advertisement, logger *logrus.Logger) device.Device {
	return goble.NewBLEDeviceFromAdvertisement(adv, logger)
}
