//go:build test

package device_test

import (
	"context"
	"reflect"
	"time"
	"unsafe"

	"github.com/srg/joyc/internal/device"
	"github.com/srg/joyc/internal/devicefactory"
	"github.com/srg/joyc/internal/testutils"
	"github.com/srg/joyc/joycon"
)

// testControllerAddress is the peripheral address every suite connects to.
// The prefix is the Nintendo OUI.
const testControllerAddress = "98:B6:E9:12:34:56"

// DeviceTestSuite connects to a mocked Joy-Con 2 peripheral before each test
// and subtest. Embedding suites get a live device and connection; tests that
// tear the link down get a fresh one automatically.
type DeviceTestSuite struct {
	testutils.MockBLEPeripheralSuite

	connection device.Connection
	device     device.Device
}

// ensureConnected builds a new device and connects it unless the current one
// is still up.
func (suite *DeviceTestSuite) ensureConnected() {
	if suite.device != nil && suite.device.IsConnected() {
		return
	}

	dev := devicefactory.NewDevice(testControllerAddress, suite.Logger)
	err := dev.Connect(context.Background(), &device.ConnectOptions{
		ConnectTimeout:        5 * time.Second,
		DescriptorReadTimeout: 1 * time.Second,
	})
	if err != nil {
		if derr := dev.Disconnect(); derr != nil {
			suite.Logger.WithError(derr).Error("Cleanup disconnect after failed connect")
		}
		suite.Require().NoError(err, "connect to the mocked controller MUST succeed")
		return
	}

	suite.device = dev
	suite.connection = dev.GetConnection()
	suite.Require().NotNil(suite.connection, "a connected device MUST expose its connection")
}

// SetupTest configures the default mocked controller profile: Generic Access,
// Battery, and the Joy-Con 2 vendor service carrying the command and input
// report characteristics. The FFxx characteristics exist only to exercise
// timeout, fallback, and error paths.
func (suite *DeviceTestSuite) SetupTest() {
	suite.WithPeripheral().
		WithService("1800").
		WithCharacteristic("2A00", "read", []byte("Joy-Con 2 (R)")).
		WithCharacteristic("2A01", "read", []byte{0xC4, 0x03}). // Appearance: Gamepad
		WithService("180F").
		WithCharacteristic("2A19", "read", []byte{85}).
		WithService("FFF0").
		WithCharacteristic(joycon.CommandCharacteristicUUID, "write,write-without-response", []byte{}).
		WithCharacteristic(joycon.InputReportCharacteristicUUID, "notify", []byte{}).
		WithCharacteristic("FF01", "read", []byte{42}, testutils.WithReadDelay(1*time.Second)).
		WithCharacteristic("FF02", "write", []byte{}, testutils.WithWriteDelay(1*time.Second)).
		WithCharacteristic("FF03", "read", []byte{}).
		WithCharacteristic("FF04", "read,write", []byte{0x00}).
		WithCharacteristic("FF05", "write-without-response", []byte{}).
		WithCharacteristic("FF06", "indicate", []byte{})

	// The parent installs the mock factories built from the profile above.
	suite.MockBLEPeripheralSuite.SetupTest()

	suite.ensureConnected()
}

func (suite *DeviceTestSuite) TearDownTest() {
	defer suite.MockBLEPeripheralSuite.TearDownTest()

	suite.connection = nil
	if suite.device == nil {
		return
	}
	if err := suite.device.Disconnect(); err != nil {
		suite.Logger.WithError(err).Error("Teardown disconnect")
	}
	suite.device = nil
}

// SetupSubTest reconnects when an earlier subtest tore the link down.
func (suite *DeviceTestSuite) SetupSubTest() {
	suite.ensureConnected()
}

// setDeviceConnectionToNil uses unsafe reflection to set the device's
// connection field to nil, enabling tests of defensive error paths that
// cannot be reached through the public API.
func (suite *DeviceTestSuite) setDeviceConnectionToNil() {
	devValue := reflect.ValueOf(suite.device).Elem()
	connectionField := devValue.FieldByName("connection")

	reflect.NewAt(connectionField.Type(), unsafe.Pointer(connectionField.UnsafeAddr())).
		Elem().
		Set(reflect.Zero(connectionField.Type()))
}
