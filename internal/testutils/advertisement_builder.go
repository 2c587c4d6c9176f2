package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srg/joyc/internal/device"
	"github.com/srg/joyc/internal/devicefactory"
	"github.com/srg/joyc/internal/testutils/mocks"
)

// advField marks which advertisement fields a builder has been given. Build
// sets mock expectations only for marked fields, so AssertExpectations
// doubles as a record of which methods the code under test called.
type advField uint16

const (
	advName advField = 1 << iota
	advAddr
	advRSSI
	advServices
	advManufData
	advServiceData
	advTxPower
	advConnectable
)

// AdvertisementBuilder assembles a mocked device.Advertisement field by
// field. Unset fields leave no expectation behind, so a code path that
// reads one anyway fails the test instead of seeing a zero value.
type AdvertisementBuilder struct {
	set advField

	address     string
	rssi        int
	name        string
	connectable bool
	txPower     *int
	services    []string
	manufData   []byte
	serviceData map[string][]byte
}

// NewAdvertisementBuilder returns a builder with every field unset.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{}
}

func (b *AdvertisementBuilder) mark(f advField) *AdvertisementBuilder {
	b.set |= f
	return b
}

func (b *AdvertisementBuilder) has(f advField) bool {
	return b.set&f != 0
}

// WithName sets the advertised local name.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.name = name
	return b.mark(advName)
}

// WithAddress sets the peripheral address.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.address = addr
	return b.mark(advAddr)
}

// WithRSSI sets the signal strength.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.rssi = rssi
	return b.mark(advRSSI)
}

// WithServices appends advertised service UUIDs, short or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.services = append(b.services, uuids...)
	return b.mark(advServices)
}

// WithManufacturerData sets the manufacturer-specific payload.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.manufData = data
	return b.mark(advManufData)
}

// WithServiceData adds a service data entry for the given UUID.
func (b *AdvertisementBuilder) WithServiceData(uuid string, data []byte) *AdvertisementBuilder {
	if b.serviceData == nil {
		b.serviceData = make(map[string][]byte)
	}
	b.serviceData[uuid] = data
	return b.mark(advServiceData)
}

// WithNoServiceData marks service data as present but empty, for tests that
// need "the device advertised none" rather than "the field was never set".
func (b *AdvertisementBuilder) WithNoServiceData() *AdvertisementBuilder {
	b.serviceData = nil
	return b.mark(advServiceData)
}

// WithTxPower sets the transmission power level.
func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.txPower = &power
	return b.mark(advTxPower)
}

// WithConnectable sets whether the peripheral accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.connectable = c
	return b.mark(advConnectable)
}

// FromJSON merges fields from a JSON document, applying fmt verbs first. A
// key present with a null value still marks its field and falls back to
// that field's default, which is how fixtures express "advertised nothing".
// Byte fields accept number arrays or base64 strings. Malformed input
// panics; a broken fixture is an authoring error, not a test outcome.
func (b *AdvertisementBuilder) FromJSON(format string, args ...interface{}) *AdvertisementBuilder {
	doc := fmt.Sprintf(format, args...)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc), &fields); err != nil {
		panic(fmt.Sprintf("advertisement fixture: %v", err))
	}

	for key, raw := range fields {
		null := string(raw) == "null"
		switch key {
		case "name":
			b.name = ""
			if !null {
				fixtureDecode(raw, &b.name)
			}
			b.mark(advName)
		case "address":
			b.address = ""
			if !null {
				fixtureDecode(raw, &b.address)
			}
			b.mark(advAddr)
		case "rssi":
			b.rssi = -50
			if !null {
				fixtureDecode(raw, &b.rssi)
			}
			b.mark(advRSSI)
		case "services":
			b.services = nil
			if !null {
				fixtureDecode(raw, &b.services)
			}
			b.mark(advServices)
		case "manufacturerData":
			b.manufData = nil
			if !null {
				var data byteArray
				fixtureDecode(raw, &data)
				b.manufData = []byte(data)
			}
			b.mark(advManufData)
		case "serviceData":
			b.serviceData = map[string][]byte{}
			if !null {
				var data map[string]byteArray
				fixtureDecode(raw, &data)
				for uuid, v := range data {
					b.serviceData[uuid] = []byte(v)
				}
			}
			b.mark(advServiceData)
		case "txPower":
			b.txPower = nil
			if !null {
				var p int
				fixtureDecode(raw, &p)
				b.txPower = &p
			}
			b.mark(advTxPower)
		case "connectable":
			b.connectable = true
			if !null {
				fixtureDecode(raw, &b.connectable)
			}
			b.mark(advConnectable)
		}
	}
	return b
}

func fixtureDecode(raw json.RawMessage, into interface{}) {
	if err := json.Unmarshal(raw, into); err != nil {
		panic(fmt.Sprintf("advertisement fixture: %v", err))
	}
}

// Build creates the MockAdvertisement with one expectation per marked
// field.
func (b *AdvertisementBuilder) Build() *mocks.MockAdvertisement {
	adv := &mocks.MockAdvertisement{}

	if b.has(advAddr) {
		adv.On("Addr").Return(b.address)
	}
	if b.has(advName) {
		adv.On("LocalName").Return(b.name)
	}
	if b.has(advRSSI) {
		adv.On("RSSI").Return(b.rssi)
	}
	if b.has(advManufData) {
		adv.On("ManufacturerData").Return(b.manufData)
	}
	if b.has(advServiceData) {
		entries := make([]struct {
			UUID string
			Data []byte
		}, 0, len(b.serviceData))
		for uuid, data := range b.serviceData {
			entries = append(entries, struct {
				UUID string
				Data []byte
			}{uuid, data})
		}
		adv.On("ServiceData").Return(entries)
	}
	if b.has(advServices) {
		adv.On("Services").Return(b.services)
	}
	if b.has(advConnectable) {
		adv.On("Connectable").Return(b.connectable)
	}
	if b.has(advTxPower) {
		level := 127 // reserved value for "level not available"
		if b.txPower != nil {
			level = *b.txPower
		}
		adv.On("TxPowerLevel").Return(level)
	}

	return adv
}

// BuildDevice builds the advertisement and wraps it in a device.Device, for
// tests that only care about the resulting device.
func (b *AdvertisementBuilder) BuildDevice(logger *logrus.Logger) device.Device {
	return devicefactory.NewDeviceFromAdvertisement(b.Build(), logger)
}

// AdvertisementArrayBuilder collects the advertisements a mocked scan will
// replay, in the order tests add them.
type AdvertisementArrayBuilder struct {
	advs []device.Advertisement
}

// NewAdvertisementArrayBuilder returns an empty replay set.
func NewAdvertisementArrayBuilder() *AdvertisementArrayBuilder {
	return &AdvertisementArrayBuilder{}
}

// WithAdvertisements appends advertisements to the replay set.
func (ab *AdvertisementArrayBuilder) WithAdvertisements(advs ...device.Advertisement) *AdvertisementArrayBuilder {
	ab.advs = append(ab.advs, advs...)
	return ab
}

// Build returns the collected advertisements.
func (ab *AdvertisementArrayBuilder) Build() []device.Advertisement {
	return ab.advs
}
