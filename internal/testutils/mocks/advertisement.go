package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/srg/joyc/internal/device"
)

// MockAdvertisement mocks the device.Advertisement interface.
// Build it through testutils.AdvertisementBuilder so that only configured
// fields carry expectations; AssertExpectations then verifies that device
// construction and update paths touch exactly the advertised fields.
type MockAdvertisement struct {
	mock.Mock
}

func (a *MockAdvertisement) Addr() string {
	return a.Called().String(0)
}

func (a *MockAdvertisement) RSSI() int {
	return a.Called().Int(0)
}

func (a *MockAdvertisement) LocalName() string {
	return a.Called().String(0)
}

func (a *MockAdvertisement) Connectable() bool {
	return a.Called().Bool(0)
}

func (a *MockAdvertisement) TxPowerLevel() int {
	return a.Called().Int(0)
}

func (a *MockAdvertisement) ServiceData() []struct {
	UUID string
	Data []byte
} {
	if d := a.Called().Get(0); d != nil {
		return d.([]struct {
			UUID string
			Data []byte
		})
	}
	return nil
}

func (a *MockAdvertisement) ManufacturerData() []byte {
	if d := a.Called().Get(0); d != nil {
		return d.([]byte)
	}
	return nil
}

func (a *MockAdvertisement) Services() []string {
	if s := a.Called().Get(0); s != nil {
		return s.([]string)
	}
	return nil
}

func (a *MockAdvertisement) SolicitedService() []string {
	if s := a.Called().Get(0); s != nil {
		return s.([]string)
	}
	return nil
}

func (a *MockAdvertisement) OverflowService() []string {
	if s := a.Called().Get(0); s != nil {
		return s.([]string)
	}
	return nil
}

var _ device.Advertisement = (*MockAdvertisement)(nil)
