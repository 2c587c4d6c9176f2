//go:build test

package device_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/srg/joyc/internal/device"
	goble "github.com/srg/joyc/internal/device/go-ble"
	blemocks "github.com/srg/joyc/internal/testutils/mocks"
)

// ScanErrorNormalizationSuite swaps the BLE device factory for a mock whose
// Scan fails, and checks what comes out the scanner's error path.
type ScanErrorNormalizationSuite struct {
	suite.Suite
	originalFactory func() (ble.Device, error)
}

func (suite *ScanErrorNormalizationSuite) SetupSuite() {
	suite.originalFactory = goble.DeviceFactory
}

func (suite *ScanErrorNormalizationSuite) TearDownSuite() {
	goble.DeviceFactory = suite.originalFactory
}

// scanWith runs one scan against a transport that fails with scanErr.
func (suite *ScanErrorNormalizationSuite) scanWith(scanErr error) error {
	goble.DeviceFactory = func() (ble.Device, error) {
		mockDev := &blemocks.MockDevice{}
		mockDev.On("Scan", mock.Anything, mock.Anything, mock.Anything).Return(scanErr)
		return mockDev, nil
	}

	scanner, err := goble.NewScanner()
	suite.Require().NoError(err, "scanner creation MUST succeed")

	return scanner.Scan(context.Background(), false, func(adv device.Advertisement) {})
}

func (suite *ScanErrorNormalizationSuite) TestSentinelMapping() {
	// GOAL: Verify platform scan failures map onto the device package sentinels
	//
	// TEST SCENARIO: Scan fails with a platform error → scanner returns it wrapped → errors.Is finds the sentinel

	tests := []struct {
		name     string
		scanErr  error
		sentinel error
		message  string
	}{
		{
			name:     "CoreBluetooth powered-off state",
			scanErr:  fmt.Errorf("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"),
			sentinel: device.ErrBluetoothOff,
			message:  "bluetooth is turned off",
		},
		{
			name:     "plain bluetooth-off message",
			scanErr:  fmt.Errorf("bluetooth is turned off"),
			sentinel: device.ErrBluetoothOff,
			message:  "bluetooth is turned off",
		},
		{
			name:     "context cancellation passes through",
			scanErr:  context.Canceled,
			sentinel: context.Canceled,
			message:  "context canceled",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			err := suite.scanWith(tt.scanErr)

			suite.Assert().Error(err, "scan MUST fail when the transport fails")
			suite.Assert().ErrorIs(err, tt.sentinel, "error chain MUST carry the sentinel")
			suite.Assert().Contains(err.Error(), tt.message, "error message MUST name the condition")
		})
	}
}

func (suite *ScanErrorNormalizationSuite) TestUnrecognizedErrorsPassThrough() {
	// GOAL: Verify unrecognized transport errors are not forced into a sentinel
	//
	// TEST SCENARIO: Scan fails with errors no pattern matches → scanner returns them unchanged

	for _, raw := range []string{
		"some other error",
		"can't init hci: no devices available: (hci0: can't up device: operation not permitted)",
	} {
		suite.Run(raw, func() {
			err := suite.scanWith(fmt.Errorf("%s", raw))

			suite.Assert().Error(err, "scan MUST fail when the transport fails")
			suite.Assert().Contains(err.Error(), raw, "original error text MUST survive")
			suite.Assert().NotErrorIs(err, device.ErrBluetoothOff, "unmatched errors MUST NOT become ErrBluetoothOff")
			suite.Assert().NotErrorIs(err, context.Canceled, "unmatched errors MUST NOT become context.Canceled")
		})
	}
}

func TestScanErrorNormalizationSuite(t *testing.T) {
	suite.Run(t, new(ScanErrorNormalizationSuite))
}
