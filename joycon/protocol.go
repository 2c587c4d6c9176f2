package joycon

// CompanyID is the Bluetooth SIG company identifier Nintendo places in
// Joy-Con 2 advertisement manufacturer data.
const CompanyID uint16 = 0x0553

// GATT characteristic UUIDs on the Joy-Con 2 vendor service.
const (
	// CommandCharacteristicUUID accepts activation and configuration writes.
	CommandCharacteristicUUID = "649d4ac9-8eb7-4e6c-af44-1ea54fe5f005"

	// InputReportCharacteristicUUID notifies one input report per update.
	InputReportCharacteristicUUID = "ab7de9be-89fe-49ad-828f-118f09df7fd2"
)

// Activation commands written to the command characteristic before the
// controller starts streaming input reports. Both writes are required, in
// order. The commands are opaque fixed payloads differing only in the
// selector byte at offset 3 (0x02 vs 0x04).
var (
	ActivationCommand1 = []byte{0x0c, 0x91, 0x01, 0x02, 0x00, 0x04, 0x00, 0x00, 0xff, 0x00, 0x00, 0x00}
	ActivationCommand2 = []byte{0x0c, 0x91, 0x01, 0x04, 0x00, 0x04, 0x00, 0x00, 0xff, 0x00, 0x00, 0x00}
)

// ActivationCommands returns the activation sequence in required write order.
func ActivationCommands() [][]byte {
	return [][]byte{ActivationCommand1, ActivationCommand2}
}
