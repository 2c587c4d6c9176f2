package testutils

import (
	"encoding/json"

	"github.com/srg/joyc/internal/device"
)

// DeviceJSONFull is the snake_case projection tests compare devices through.
// Byte payloads stay numeric arrays so fixtures read the same as the protocol
// tables they come from.
type DeviceJSONFull struct {
	ID               string        `json:"id"`
	Address          string        `json:"address"`
	Name             string        `json:"name"`
	RSSI             int           `json:"rssi"`
	Connectable      bool          `json:"connectable"`
	TxPower          *int          `json:"tx_power,omitempty"`
	Services         []ServiceJSON `json:"services"`
	ManufacturerData any           `json:"manufacturer_data,omitempty"`
	ServiceData      any           `json:"service_data,omitempty"`
}

// ServiceJSON is one GATT service in the projection.
type ServiceJSON struct {
	UUID            string               `json:"uuid"`
	Characteristics []CharacteristicJSON `json:"characteristics"`
}

// CharacteristicJSON carries the rendered value alongside the GATT metadata.
type CharacteristicJSON struct {
	UUID        string           `json:"uuid"`
	Value       string           `json:"value"`
	Properties  string           `json:"properties"`
	Descriptors []DescriptorJSON `json:"descriptors"`
}

// DescriptorJSON keeps only the UUID; descriptor values are read on demand.
type DescriptorJSON struct {
	UUID string `json:"uuid"`
}

// DeviceToJSON renders d in the projection above. Advertised services carry
// no characteristics; those only exist on a live connection.
func DeviceToJSON(d device.Device) string {
	var services []ServiceJSON
	for _, uuid := range d.AdvertisedServices() {
		services = append(services, ServiceJSON{
			UUID:            uuid,
			Characteristics: []CharacteristicJSON{},
		})
	}

	var manufData any
	if d.ManufacturerData() != nil {
		manufData = intsFromBytes(d.ManufacturerData())
	}

	var serviceData any
	if len(d.ServiceData()) > 0 {
		svcData := make(map[string][]int, len(d.ServiceData()))
		for uuid, data := range d.ServiceData() {
			svcData[uuid] = intsFromBytes(data)
		}
		serviceData = svcData
	}

	b, err := json.Marshal(DeviceJSONFull{
		ID:               d.ID(),
		Name:             d.Name(),
		Address:          d.Address(),
		RSSI:             d.RSSI(),
		TxPower:          d.TxPower(),
		Connectable:      d.IsConnectable(),
		Services:         services,
		ManufacturerData: manufData,
		ServiceData:      serviceData,
	})
	if err != nil {
		panic(err)
	}

	return string(b)
}

func intsFromBytes(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}
