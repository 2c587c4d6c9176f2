package testutils

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"

	"github.com/srg/joyc/internal/device"
	"github.com/srg/joyc/internal/testutils/mocks"
)

// aggregateIndexBase offsets descriptor indexes stored in unresolved
// Characteristic Aggregate Format values. Build() replaces each reference
// with the actual ATT handle of the referenced Presentation Format descriptor.
const aggregateIndexBase = 0x0100

// byteArray marshals as a JSON number array instead of base64, matching the
// readable byte-list form used in test profiles. Base64 strings are still
// accepted on input for compatibility with encoding/json defaults.
type byteArray []byte

func (b byteArray) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

func (b *byteArray) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var decoded []byte
		if err := json.Unmarshal(data, &decoded); err != nil {
			return err
		}
		*b = decoded
		return nil
	}
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value %d out of range at index %d", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// DescriptorConfig represents a BLE descriptor configuration for mocking
type DescriptorConfig struct {
	UUID  string    `json:"uuid"`
	Value byteArray `json:"value"`
}

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID        string             `json:"uuid"`
	Properties  string             `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value       byteArray          `json:"value,omitempty"`
	Descriptors []DescriptorConfig `json:"descriptors,omitempty"`

	readDelay    time.Duration
	writeDelay   time.Duration
	noProperties bool
}

// CharacteristicOption customizes the runtime behavior of a mocked characteristic.
type CharacteristicOption func(*CharacteristicConfig)

// WithReadDelay makes the mocked read block for d before returning the value.
// Use it to exercise read timeout paths.
func WithReadDelay(d time.Duration) CharacteristicOption {
	return func(c *CharacteristicConfig) { c.readDelay = d }
}

// WithWriteDelay makes the mocked write block for d before acknowledging.
// Use it to exercise write timeout paths.
func WithWriteDelay(d time.Duration) CharacteristicOption {
	return func(c *CharacteristicConfig) { c.writeDelay = d }
}

// ServiceConfig describes one mocked GATT service.
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig is the full mocked GATT profile.
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// PeripheralDeviceBuilder builds mocked BLE peripherals with full
// service/characteristic/descriptor support. Build() produces a
// mocks.MockDevice whose Dial, DiscoverProfile, read, write and subscribe
// expectations reflect the configured profile. Build() can be called
// repeatedly; each call returns an independent mock with a fresh disconnect
// channel, so a device factory closure can rebuild the peripheral on every
// connect and pick up profile changes made between connects.
type PeripheralDeviceBuilder struct {
	t              *testing.T
	profile        DeviceProfileConfig
	disconnectChan chan struct{}
}

// NewPeripheralDeviceBuilder creates a new builder. The testing.T registers
// cleanup for the disconnect channels created by Build().
func NewPeripheralDeviceBuilder(t *testing.T) *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{t: t}
}

// FromJSON fills the profile from a JSON string with format support.
// Characteristic and descriptor values are JSON number arrays.
// Panics on invalid JSON as this is intended for test data setup.
func (b *PeripheralDeviceBuilder) FromJSON(format string, args ...any) *PeripheralDeviceBuilder {
	raw := fmt.Sprintf(format, args...)

	var profile DeviceProfileConfig
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		panic(fmt.Sprintf("FromJSON: failed to unmarshal device profile: %v", err))
	}
	b.profile = profile
	return b
}

// WithService adds a service to the profile. Subsequent WithCharacteristic
// calls attach characteristics to the most recently added service.
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service.
// Properties is a comma-separated list, e.g. "read,notify".
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte, opts ...CharacteristicOption) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic requires WithService first")
	}

	char := CharacteristicConfig{UUID: uuid, Properties: properties, Value: byteArray(value)}
	for _, opt := range opts {
		opt(&char)
	}

	svc := &b.profile.Services[len(b.profile.Services)-1]
	svc.Characteristics = append(svc.Characteristics, char)
	return b
}

// WithCharacteristicNoProperties adds a characteristic whose property bitmask
// is zero. CoreBluetooth reports characteristics this way when the peripheral
// requires pairing before exposing them.
func (b *PeripheralDeviceBuilder) WithCharacteristicNoProperties(uuid string, value []byte) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristicNoProperties requires WithService first")
	}

	char := CharacteristicConfig{UUID: uuid, Value: byteArray(value), noProperties: true}
	svc := &b.profile.Services[len(b.profile.Services)-1]
	svc.Characteristics = append(svc.Characteristics, char)
	return b
}

// WithDescriptor adds a descriptor to the last added characteristic.
func (b *PeripheralDeviceBuilder) WithDescriptor(uuid string, value []byte) *PeripheralDeviceBuilder {
	char := b.lastCharacteristic("WithDescriptor")
	char.Descriptors = append(char.Descriptors, DescriptorConfig{UUID: uuid, Value: byteArray(value)})
	return b
}

// WithAggregateFormatDescriptor starts building a Characteristic Aggregate
// Format descriptor (0x2905) for the last added characteristic. Each
// WithPresentationFormat call on the returned builder adds a Presentation
// Format descriptor (0x2904); its Build() appends the aggregate referencing
// them and returns this builder for further chaining.
func (b *PeripheralDeviceBuilder) WithAggregateFormatDescriptor() *AggregateFormatDescriptorBuilder {
	b.lastCharacteristic("WithAggregateFormatDescriptor")
	return &AggregateFormatDescriptorBuilder{parent: b}
}

// GetServices returns the configured profile services.
func (b *PeripheralDeviceBuilder) GetServices() []ServiceConfig {
	return b.profile.Services
}

// GetDisconnectChannel returns the disconnect channel of the most recent
// Build(). Closing it simulates a peripheral-side link drop.
func (b *PeripheralDeviceBuilder) GetDisconnectChannel() chan struct{} {
	return b.disconnectChan
}

func (b *PeripheralDeviceBuilder) lastCharacteristic(caller string) *CharacteristicConfig {
	if len(b.profile.Services) == 0 {
		panic(caller + " requires WithService first")
	}
	svc := &b.profile.Services[len(b.profile.Services)-1]
	if len(svc.Characteristics) == 0 {
		panic(caller + " requires WithCharacteristic first")
	}
	return &svc.Characteristics[len(svc.Characteristics)-1]
}

func (b *PeripheralDeviceBuilder) hasService(uuid string) bool {
	normalized := device.NormalizeUUID(uuid)
	for _, svc := range b.profile.Services {
		if device.NormalizeUUID(svc.UUID) == normalized {
			return true
		}
	}
	return false
}

// gapServiceConfig is the Generic Access service appended to profiles that do
// not declare one, mirroring what real peripherals expose. The default
// Appearance value 0x0040 decodes to "Phone".
func gapServiceConfig() ServiceConfig {
	return ServiceConfig{
		UUID: "1800",
		Characteristics: []CharacteristicConfig{
			{UUID: "2A00", Properties: "read", Value: byteArray("Mock Peripheral")},
			{UUID: "2A01", Properties: "read", Value: byteArray{0x40, 0x00}},
		},
	}
}

// parseCharacteristicProperties converts a comma-separated property list into
// a ble.Property bitmask. Panics on unknown tokens to surface test data typos.
func parseCharacteristicProperties(properties string) ble.Property {
	var prop ble.Property
	for _, token := range strings.Split(properties, ",") {
		switch strings.ToLower(strings.TrimSpace(token)) {
		case "":
		case "broadcast":
			prop |= ble.CharBroadcast
		case "read":
			prop |= ble.CharRead
		case "write-without-response", "write_without_response":
			prop |= ble.CharWriteNR
		case "write":
			prop |= ble.CharWrite
		case "notify":
			prop |= ble.CharNotify
		case "indicate":
			prop |= ble.CharIndicate
		case "authenticated_signed_writes":
			prop |= ble.CharSignedWrite
		case "extended":
			prop |= ble.CharExtended
		default:
			panic(fmt.Sprintf("unknown characteristic property %q", token))
		}
	}
	return prop
}

// resolveAggregateValue replaces index references in an unresolved aggregate
// format value with the little-endian ATT handles of the referenced
// descriptors.
func resolveAggregateValue(placeholder []byte, descHandles []uint16) []byte {
	resolved := make([]byte, 0, len(placeholder))
	for i := 0; i+1 < len(placeholder); i += 2 {
		idx := int(placeholder[i]) | int(placeholder[i+1])<<8
		idx -= aggregateIndexBase
		if idx < 0 || idx >= len(descHandles) {
			panic(fmt.Sprintf("aggregate format reference %d out of range", idx))
		}
		h := descHandles[idx]
		resolved = append(resolved, byte(h&0xFF), byte(h>>8))
	}
	return resolved
}

// Build produces a MockDevice backed by the configured profile.
//
// ATT handles are assigned sequentially starting at 0x0001: one handle per
// service, one per characteristic, one per descriptor. Read, write, subscribe
// and unsubscribe expectations are registered per characteristic; reads of
// characteristics without the read property fail. A Generic Access service is
// appended when the profile does not declare one.
func (b *PeripheralDeviceBuilder) Build() *mocks.MockDevice {
	mockDevice := &mocks.MockDevice{}
	mockClient := &mocks.MockClient{}

	services := b.profile.Services
	if !b.hasService("1800") {
		services = append(append([]ServiceConfig{}, services...), gapServiceConfig())
	}

	var bleServices []*ble.Service
	currentHandle := uint16(0x0001)

	for _, svcCfg := range services {
		bleSvc := &ble.Service{UUID: ble.MustParse(svcCfg.UUID), Handle: currentHandle}
		currentHandle++

		for _, charCfg := range svcCfg.Characteristics {
			var prop ble.Property
			if !charCfg.noProperties {
				prop = parseCharacteristicProperties(charCfg.Properties)
			}

			bleChar := &ble.Characteristic{
				UUID:        ble.MustParse(charCfg.UUID),
				Property:    prop,
				Value:       []byte(charCfg.Value),
				Handle:      currentHandle,
				ValueHandle: currentHandle,
			}
			currentHandle++

			descHandles := make([]uint16, len(charCfg.Descriptors))
			for di := range charCfg.Descriptors {
				descHandles[di] = currentHandle
				currentHandle++
			}
			for di, descCfg := range charCfg.Descriptors {
				value := []byte(descCfg.Value)
				if device.NormalizeUUID(descCfg.UUID) == "2905" && len(value) > 0 {
					value = resolveAggregateValue(value, descHandles)
				}
				bleDesc := &ble.Descriptor{
					UUID:   ble.MustParse(descCfg.UUID),
					Handle: descHandles[di],
					Value:  value,
				}
				mockClient.On("ReadDescriptor", bleDesc).Return(value, nil)
				bleChar.Descriptors = append(bleChar.Descriptors, bleDesc)
			}

			registerCharacteristicExpectations(mockClient, bleChar, charCfg)
			bleSvc.Characteristics = append(bleSvc.Characteristics, bleChar)
		}

		bleServices = append(bleServices, bleSvc)
	}

	mockProfile := &ble.Profile{Services: bleServices}

	mockDevice.On("Dial", mock.Anything, mock.Anything).Return(mockClient, nil)
	mockClient.On("DiscoverProfile", true).Return(mockProfile, nil)
	mockClient.On("CancelConnection").Return(nil)

	b.disconnectChan = make(chan struct{})
	mockClient.On("Disconnected").Return((<-chan struct{})(b.disconnectChan))

	disconnectChan := b.disconnectChan
	b.t.Cleanup(func() {
		select {
		case <-disconnectChan:
		default:
			close(disconnectChan)
		}
	})

	return mockDevice
}

func registerCharacteristicExpectations(mockClient *mocks.MockClient, bleChar *ble.Characteristic, charCfg CharacteristicConfig) {
	readCall := mockClient.On("ReadCharacteristic", bleChar)
	if bleChar.Property&ble.CharRead != 0 {
		if charCfg.readDelay > 0 {
			delay := charCfg.readDelay
			readCall.Run(func(mock.Arguments) { time.Sleep(delay) })
		}
		readCall.Return([]byte(charCfg.Value), nil)
	} else {
		readCall.Return(nil, fmt.Errorf("characteristic %s does not support read", charCfg.UUID))
	}

	writeCall := mockClient.On("WriteCharacteristic", bleChar, mock.Anything, mock.Anything)
	if charCfg.writeDelay > 0 {
		delay := charCfg.writeDelay
		writeCall.Run(func(mock.Arguments) { time.Sleep(delay) })
	}
	writeCall.Return(nil)

	mockClient.On("Subscribe", bleChar, false, mock.Anything).Return(nil)
	mockClient.On("Unsubscribe", bleChar, false).Return(nil)
	mockClient.On("Unsubscribe", bleChar, true).Return(nil)
}

// AggregateFormatDescriptorBuilder accumulates Presentation Format descriptors
// and materializes them, followed by the referencing Aggregate Format
// descriptor, when Build() is called.
type AggregateFormatDescriptorBuilder struct {
	parent  *PeripheralDeviceBuilder
	formats [][]byte
}

// WithPresentationFormat adds a Presentation Format descriptor (0x2904) value.
func (a *AggregateFormatDescriptorBuilder) WithPresentationFormat(format []byte) *AggregateFormatDescriptorBuilder {
	a.formats = append(a.formats, format)
	return a
}

// Build appends the accumulated Presentation Format descriptors and the
// Aggregate Format descriptor to the target characteristic, then returns the
// parent builder for chaining. The aggregate value stores index references
// until the device Build() resolves them to ATT handles.
func (a *AggregateFormatDescriptorBuilder) Build() *PeripheralDeviceBuilder {
	char := a.parent.lastCharacteristic("WithAggregateFormatDescriptor")

	var aggregate byteArray
	for _, format := range a.formats {
		ref := aggregateIndexBase + len(char.Descriptors)
		char.Descriptors = append(char.Descriptors, DescriptorConfig{UUID: "2904", Value: byteArray(format)})
		aggregate = append(aggregate, byte(ref&0xFF), byte(ref>>8))
	}
	char.Descriptors = append(char.Descriptors, DescriptorConfig{UUID: "2905", Value: aggregate})

	return a.parent
}
