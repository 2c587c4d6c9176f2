//go:build test

package testutils

import (
	"testing"

	blelib "github.com/go-ble/ble"
	"github.com/stretchr/testify/suite"
)

// Vendor UUIDs matching the controller's GATT layout, used as realistic
// profile fixtures.
const (
	builderVendorService = "fff0"
	builderCommandUUID   = "649d4ac9-8eb7-4e6c-af44-1ea54fe5f005"
	builderInputUUID     = "ab7de9be-89fe-49ad-828f-118f09df7fd2"
)

// PeripheralDeviceBuilderTestSuite checks the mocks the builder assembles.
type PeripheralDeviceBuilderTestSuite struct {
	suite.Suite
}

// discoverProfile dials the mocked device and discovers its profile
func (s *PeripheralDeviceBuilderTestSuite) discoverProfile(device blelib.Device) *blelib.Profile {
	client, err := device.Dial(nil, nil)
	s.Require().NoError(err, "mock dial MUST succeed")

	profile, err := client.DiscoverProfile(true)
	s.Require().NoError(err, "mock discovery MUST succeed")
	s.Require().NotNil(profile)
	return profile
}

func (s *PeripheralDeviceBuilderTestSuite) TestBuild_ControllerProfile() {
	// GOAL: Verify a controller-shaped profile builds with sequential ATT handles
	//
	// TEST SCENARIO: Vendor service with command and input characteristics plus CCCD → discovered profile mirrors the configuration

	device := NewPeripheralDeviceBuilder(s.T()).
		WithService(builderVendorService).
		WithCharacteristic(builderCommandUUID, "write,write-without-response", []byte{}).
		WithCharacteristic(builderInputUUID, "notify", []byte{}).
		WithDescriptor("2902", []byte{0x00, 0x00}).
		Build()

	profile := s.discoverProfile(device)

	s.Require().Len(profile.Services, 2, "vendor service plus the implicit Generic Access service")

	vendor := profile.Services[0]
	s.Assert().True(vendor.UUID.Equal(blelib.MustParse(builderVendorService)), "first service MUST be the vendor service")
	s.Assert().Equal(uint16(0x0001), vendor.Handle, "handles MUST start at 0x0001")
	s.Require().Len(vendor.Characteristics, 2)

	command := vendor.Characteristics[0]
	s.Assert().True(command.UUID.Equal(blelib.MustParse(builderCommandUUID)))
	s.Assert().Equal(blelib.CharWrite|blelib.CharWriteNR, command.Property, "command characteristic MUST carry both write properties")
	s.Assert().Equal(uint16(0x0002), command.Handle)

	input := vendor.Characteristics[1]
	s.Assert().True(input.UUID.Equal(blelib.MustParse(builderInputUUID)))
	s.Assert().Equal(blelib.CharNotify, input.Property, "input characteristic MUST be notify-only")
	s.Assert().Equal(uint16(0x0003), input.Handle)

	s.Require().Len(input.Descriptors, 1, "input characteristic MUST carry its CCCD")
	cccd := input.Descriptors[0]
	s.Assert().True(cccd.UUID.Equal(blelib.MustParse("2902")))
	s.Assert().Equal(uint16(0x0004), cccd.Handle, "descriptor handle MUST follow its characteristic")

	gap := profile.Services[1]
	s.Assert().True(gap.UUID.Equal(blelib.MustParse("1800")), "Generic Access MUST be appended last")
	s.Require().Len(gap.Characteristics, 2)
	s.Assert().Equal([]byte("Mock Peripheral"), gap.Characteristics[0].Value, "device name MUST have the mock default")
}

func (s *PeripheralDeviceBuilderTestSuite) TestBuild_AggregateFormat() {
	// GOAL: Verify aggregate format descriptors resolve index references to ATT handles
	//
	// TEST SCENARIO: Two presentation formats under one characteristic → aggregate value lists both handles little-endian

	format := []byte{0x04, 0x00, 0x01, 0x29, 0x01, 0x00, 0x00}

	builder := NewPeripheralDeviceBuilder(s.T()).
		WithService(builderVendorService).
		WithCharacteristic("aa07", "read,notify", []byte{0x00}).
		WithAggregateFormatDescriptor().
		WithPresentationFormat(format).
		WithPresentationFormat(format).
		Build()

	profile := s.discoverProfile(builder.Build())

	char := profile.Services[0].Characteristics[0]
	s.Require().Len(char.Descriptors, 3, "two formats plus the aggregate")

	// Service 0x0001, characteristic 0x0002, then the descriptors
	s.Assert().Equal(uint16(0x0003), char.Descriptors[0].Handle)
	s.Assert().Equal(uint16(0x0004), char.Descriptors[1].Handle)
	s.Assert().Equal(format, char.Descriptors[0].Value)

	aggregate := char.Descriptors[2]
	s.Assert().True(aggregate.UUID.Equal(blelib.MustParse("2905")))
	s.Assert().Equal([]byte{0x03, 0x00, 0x04, 0x00}, aggregate.Value,
		"aggregate MUST reference both format descriptor handles")
}

func (s *PeripheralDeviceBuilderTestSuite) TestBuild_EmptyAggregate() {
	// GOAL: Verify an aggregate without formats stays empty

	builder := NewPeripheralDeviceBuilder(s.T()).
		WithService(builderVendorService).
		WithCharacteristic("aa07", "read,notify", []byte{0x00}).
		WithAggregateFormatDescriptor().
		Build()

	descriptors := builder.GetServices()[0].Characteristics[0].Descriptors
	s.Require().Len(descriptors, 1, "MUST have only the aggregate descriptor")
	s.Assert().Equal("2905", descriptors[0].UUID)
	s.Assert().Empty(descriptors[0].Value, "aggregate value MUST be empty")
}

func (s *PeripheralDeviceBuilderTestSuite) TestBuild_ReadBehavior() {
	// GOAL: Verify read expectations follow the read property
	//
	// TEST SCENARIO: Read a readable and a write-only characteristic → value and error respectively

	device := NewPeripheralDeviceBuilder(s.T()).
		WithService(builderVendorService).
		WithCharacteristic("aa01", "read", []byte{0x12, 0x34}).
		WithCharacteristic("aa02", "write", []byte{}).
		Build()

	client, err := device.Dial(nil, nil)
	s.Require().NoError(err)
	profile, err := client.DiscoverProfile(true)
	s.Require().NoError(err)

	readable := profile.Services[0].Characteristics[0]
	value, err := client.ReadCharacteristic(readable)
	s.Require().NoError(err, "readable characteristic MUST return its value")
	s.Assert().Equal([]byte{0x12, 0x34}, value)

	writeOnly := profile.Services[0].Characteristics[1]
	_, err = client.ReadCharacteristic(writeOnly)
	s.Assert().Error(err, "write-only characteristic MUST reject reads")
}

func (s *PeripheralDeviceBuilderTestSuite) TestBuild_NoProperties() {
	// GOAL: Verify characteristics can present an empty property mask, as
	// CoreBluetooth does for characteristics gated behind pairing

	device := NewPeripheralDeviceBuilder(s.T()).
		WithService(builderVendorService).
		WithCharacteristicNoProperties(builderInputUUID, []byte{}).
		Build()

	profile := s.discoverProfile(device)

	char := profile.Services[0].Characteristics[0]
	s.Assert().Equal(blelib.Property(0), char.Property, "property mask MUST be empty")
}

func (s *PeripheralDeviceBuilderTestSuite) TestBuild_Rebuild() {
	// GOAL: Verify each Build produces an independent disconnect channel, so
	// factory closures can rebuild the peripheral per connect

	builder := NewPeripheralDeviceBuilder(s.T()).
		WithService(builderVendorService).
		WithCharacteristic(builderInputUUID, "notify", []byte{})

	builder.Build()
	first := builder.GetDisconnectChannel()

	builder.Build()
	second := builder.GetDisconnectChannel()

	s.Require().NotNil(first)
	s.Require().NotNil(second)
	s.Assert().NotEqual(first, second, "rebuild MUST create a fresh disconnect channel")
}

func TestPeripheralDeviceBuilder(t *testing.T) {
	suite.Run(t, new(PeripheralDeviceBuilderTestSuite))
}
