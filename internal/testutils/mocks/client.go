package mocks

import (
	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockClient mocks the ble.Client interface.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Addr() ble.Addr {
	args := m.Called()
	if a := args.Get(0); a != nil {
		return a.(ble.Addr)
	}
	return nil
}

func (m *MockClient) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockClient) Profile() *ble.Profile {
	args := m.Called()
	if p := args.Get(0); p != nil {
		return p.(*ble.Profile)
	}
	return nil
}

func (m *MockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	var profile *ble.Profile
	if p := args.Get(0); p != nil {
		profile = p.(*ble.Profile)
	}
	return profile, args.Error(1)
}

func (m *MockClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	args := m.Called(filter)
	var svcs []*ble.Service
	if s := args.Get(0); s != nil {
		svcs = s.([]*ble.Service)
	}
	return svcs, args.Error(1)
}

func (m *MockClient) DiscoverIncludedServices(filter []ble.UUID, s *ble.Service) ([]*ble.Service, error) {
	args := m.Called(filter, s)
	var svcs []*ble.Service
	if v := args.Get(0); v != nil {
		svcs = v.([]*ble.Service)
	}
	return svcs, args.Error(1)
}

func (m *MockClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	args := m.Called(filter, s)
	var chars []*ble.Characteristic
	if c := args.Get(0); c != nil {
		chars = c.([]*ble.Characteristic)
	}
	return chars, args.Error(1)
}

func (m *MockClient) DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error) {
	args := m.Called(filter, c)
	var descs []*ble.Descriptor
	if d := args.Get(0); d != nil {
		descs = d.([]*ble.Descriptor)
	}
	return descs, args.Error(1)
}

func (m *MockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	var data []byte
	if d := args.Get(0); d != nil {
		data = d.([]byte)
	}
	return data, args.Error(1)
}

func (m *MockClient) ReadLongCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	var data []byte
	if d := args.Get(0); d != nil {
		data = d.([]byte)
	}
	return data, args.Error(1)
}

func (m *MockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	args := m.Called(c, value, noRsp)
	return args.Error(0)
}

func (m *MockClient) ReadDescriptor(d *ble.Descriptor) ([]byte, error) {
	args := m.Called(d)
	var data []byte
	if v := args.Get(0); v != nil {
		data = v.([]byte)
	}
	return data, args.Error(1)
}

func (m *MockClient) WriteDescriptor(d *ble.Descriptor, v []byte) error {
	args := m.Called(d, v)
	return args.Error(0)
}

func (m *MockClient) ReadRSSI() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockClient) ExchangeMTU(rxMTU int) (int, error) {
	args := m.Called(rxMTU)
	return args.Int(0), args.Error(1)
}

func (m *MockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	args := m.Called(c, ind, h)
	return args.Error(0)
}

func (m *MockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	args := m.Called(c, ind)
	return args.Error(0)
}

func (m *MockClient) ClearSubscriptions() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockClient) CancelConnection() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockClient) Disconnected() <-chan struct{} {
	args := m.Called()
	if ch := args.Get(0); ch != nil {
		return ch.(<-chan struct{})
	}
	return nil
}

func (m *MockClient) Conn() ble.Conn {
	args := m.Called()
	if c := args.Get(0); c != nil {
		return c.(ble.Conn)
	}
	return nil
}
