package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/joyc/internal/device"
)

// BLEAdvertisement adapts a ble.Advertisement to device.Advertisement.
type BLEAdvertisement struct {
	adv ble.Advertisement
}

func NewBLEAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &BLEAdvertisement{adv: adv}
}

func (a *BLEAdvertisement) Addr() string             { return a.adv.Addr().String() }
func (a *BLEAdvertisement) RSSI() int                { return a.adv.RSSI() }
func (a *BLEAdvertisement) LocalName() string        { return a.adv.LocalName() }
func (a *BLEAdvertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *BLEAdvertisement) TxPowerLevel() int        { return int(a.adv.TxPowerLevel()) }
func (a *BLEAdvertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }

func (a *BLEAdvertisement) Services() []string         { return uuidStrings(a.adv.Services()) }
func (a *BLEAdvertisement) SolicitedService() []string { return uuidStrings(a.adv.SolicitedService()) }
func (a *BLEAdvertisement) OverflowService() []string  { return uuidStrings(a.adv.OverflowService()) }

func (a *BLEAdvertisement) ServiceData() []struct {
	UUID string
	Data []byte
} {
	src := a.adv.ServiceData()
	out := make([]struct {
		UUID string
		Data []byte
	}, len(src))
	for i, sd := range src {
		out[i].UUID = sd.UUID.String()
		out[i].Data = sd.Data
	}
	return out
}

// Unwrap returns the underlying ble.Advertisement.
func (a *BLEAdvertisement) Unwrap() ble.Advertisement {
	return a.adv
}

func uuidStrings(uuids []ble.UUID) []string {
	out := make([]string, len(uuids))
	for i, u := range uuids {
		out[i] = u.String()
	}
	return out
}
