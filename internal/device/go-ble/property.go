package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/joyc/internal/device"
)

// BLEProperty is one decoded property bit with its GATT name.
type BLEProperty struct {
	value ble.Property
	name  string
}

func (p *BLEProperty) Value() int {
	return int(p.value)
}

func (p *BLEProperty) KnownName() string {
	return p.name
}

// BLEProperties implements device.Properties directly over the raw property
// bitfield. Each accessor returns the named property when its bit is set,
// nil otherwise.
type BLEProperties struct {
	raw ble.Property
}

func NewProperties(p ble.Property) device.Properties {
	return &BLEProperties{raw: p}
}

func (p *BLEProperties) bit(flag ble.Property, name string) device.Property {
	if p.raw&flag == 0 {
		return nil
	}
	return &BLEProperty{value: flag, name: name}
}

func (p *BLEProperties) Broadcast() device.Property {
	return p.bit(ble.CharBroadcast, "Broadcast")
}

func (p *BLEProperties) Read() device.Property {
	return p.bit(ble.CharRead, "Read")
}

func (p *BLEProperties) Write() device.Property {
	return p.bit(ble.CharWrite, "Write")
}

func (p *BLEProperties) WriteWithoutResponse() device.Property {
	return p.bit(ble.CharWriteNR, "WriteWithoutResponse")
}

func (p *BLEProperties) Notify() device.Property {
	return p.bit(ble.CharNotify, "Notify")
}

func (p *BLEProperties) Indicate() device.Property {
	return p.bit(ble.CharIndicate, "Indicate")
}

func (p *BLEProperties) AuthenticatedSignedWrites() device.Property {
	return p.bit(ble.CharSignedWrite, "AuthenticatedSignedWrites")
}

func (p *BLEProperties) ExtendedProperties() device.Property {
	return p.bit(ble.CharExtended, "ExtendedProperties")
}
