//go:build test

package testutils

import (
	"context"
	"testing"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/joyc/internal/device"
	goble "github.com/srg/joyc/internal/device/go-ble"
	"github.com/srg/joyc/internal/devicefactory"
)

// MockBLEPeripheralSuite is the base suite for tests that talk to a fake
// controller instead of a radio. Embedding it swaps both device factory
// seams to mocks before every test and restores them afterwards.
//
// Suites that never configure anything get a minimal peripheral exposing
// only the battery service. To shape the peripheral, override SetupTest,
// configure the builders, and hand control back to this type last:
//
//	func (s *StreamSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("FFF0").
//	        WithCharacteristic("ab7de9be-89fe-49ad-828f-118f09df7fd2", "notify", nil)
//	    s.MockBLEPeripheralSuite.SetupTest()
//	}
//
// Scan tests feed advertisements the same way through WithAdvertisements.
type MockBLEPeripheralSuite struct {
	suite.Suite

	// Logger is the per-suite debug logger; embedders pass it to the code
	// under test so failures come with the full BLE trace.
	Logger *logrus.Logger

	// PeripheralBuilder holds the profile behind the next factory Build.
	// Exposed so tests can reach mock-only hooks such as
	// GetDisconnectChannel.
	PeripheralBuilder *PeripheralDeviceBuilder

	advBuilder      *AdvertisementArrayBuilder
	prevRawFactory  func() (blelib.Device, error)
	prevScanFactory func() (device.ScanningDevice, error)
}

// SetupSuite snapshots the real factories once and schedules their
// restoration for when the suite's test finishes.
func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.Logger = NewTestHelper(s.T()).Logger
	s.prevRawFactory = goble.DeviceFactory
	s.prevScanFactory = devicefactory.DeviceFactory
	s.T().Cleanup(func() {
		goble.DeviceFactory = s.prevRawFactory
		devicefactory.DeviceFactory = s.prevScanFactory
	})
}

// SetupTest points the factories at the configured mocks. Embedders that
// override it must configure their builders first and call this last.
func (s *MockBLEPeripheralSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = batteryOnlyPeripheral(s.T())
	}
	goble.DeviceFactory = func() (blelib.Device, error) {
		return s.PeripheralBuilder.Build(), nil
	}

	if s.advBuilder != nil {
		replay := &advertisementReplay{advs: s.advBuilder.Build()}
		devicefactory.DeviceFactory = func() (device.ScanningDevice, error) {
			return replay, nil
		}
	}
}

// TearDownTest restores the real factories and forgets the per-test
// builders, so the next test starts from the default profile again.
func (s *MockBLEPeripheralSuite) TearDownTest() {
	goble.DeviceFactory = s.prevRawFactory
	devicefactory.DeviceFactory = s.prevScanFactory
	s.PeripheralBuilder = nil
	s.advBuilder = nil
}

// WithPeripheral returns the builder for the next test's peripheral,
// creating an empty one on first use.
func (s *MockBLEPeripheralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder(s.T())
	}
	return s.PeripheralBuilder
}

// WithAdvertisements returns the builder for the advertisements the next
// scan will replay.
func (s *MockBLEPeripheralSuite) WithAdvertisements() *AdvertisementArrayBuilder {
	if s.advBuilder == nil {
		s.advBuilder = NewAdvertisementArrayBuilder()
	}
	return s.advBuilder
}

// advertisementReplay is the ScanningDevice handed out by the mocked scan
// factory. It plays the configured advertisements once and then parks until
// the scan context ends, the way a real radio sits through air silence.
type advertisementReplay struct {
	advs []device.Advertisement
}

func (r *advertisementReplay) Scan(ctx context.Context, _ bool, handle func(device.Advertisement)) error {
	for _, adv := range r.advs {
		if err := ctx.Err(); err != nil {
			return err
		}
		handle(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

// batteryOnlyPeripheral is the fallback profile for suites that never call
// WithPeripheral: a single battery service reporting 50%.
func batteryOnlyPeripheral(t *testing.T) *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder(t).FromJSON(`{
		"services": [{
			"uuid": "180F",
			"characteristics": [
				{"uuid": "2A19", "properties": "read,notify", "value": [50]}
			]
		}]
	}`)
}
