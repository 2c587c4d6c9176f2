// Package bledb provides lookup tables for Bluetooth SIG assigned numbers
// and known vendor-specific UUIDs.
//
// The tables are a curated subset of the Bluetooth numbers database: the
// standard services, characteristics, and descriptors a controller client
// encounters in practice, plus the Nintendo vendor UUIDs used by Joy-Con 2
// peripherals. Call bledb.LookupService(uuid) etc., or check
// bledb.DataVersion for the data revision.
package bledb

import "strings"

// DataVersion identifies the revision of the curated lookup tables.
const DataVersion = "2025.10"

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb) in normalized form.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal BLE library format
// (lowercase, no dashes or braces, 0x prefix stripped). Full 128-bit UUIDs
// on the Bluetooth SIG base are reduced to their 16-bit short form.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.NewReplacer("-", "", "{", "", "}", "").Replace(u)
	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format.
func NormalizeUUIDs(uuids []string) []string {
	if uuids == nil {
		return nil
	}
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = NormalizeUUID(u)
	}
	return result
}

// LookupService returns the known name for a service UUID, or "" if unknown.
func LookupService(uuid string) string {
	return serviceNames[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the known name for a characteristic UUID, or "" if unknown.
func LookupCharacteristic(uuid string) string {
	return characteristicNames[NormalizeUUID(uuid)]
}

// LookupDescriptor returns the known name for a descriptor UUID, or "" if unknown.
func LookupDescriptor(uuid string) string {
	return descriptorNames[NormalizeUUID(uuid)]
}

// LookupAppearanceCode returns the name for a GAP Appearance value, or "" if unknown.
func LookupAppearanceCode(code uint16) string {
	return appearanceNames[code]
}

// LookupCompany returns the name for a Bluetooth SIG company identifier, or "" if unknown.
func LookupCompany(id uint16) string {
	return companyNames[id]
}

var serviceNames = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery Service",
	"1812": "Human Interface Device",
	"1813": "Scan Parameters",
}

var characteristicNames = map[string]string{
	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a04": "Peripheral Preferred Connection Parameters",
	"2a05": "Service Changed",
	"2a19": "Battery Level",
	"2a24": "Model Number String",
	"2a25": "Serial Number String",
	"2a26": "Firmware Revision String",
	"2a27": "Hardware Revision String",
	"2a28": "Software Revision String",
	"2a29": "Manufacturer Name String",
	"2a37": "Heart Rate Measurement",
	"2a4a": "HID Information",
	"2a4b": "Report Map",
	"2a4c": "HID Control Point",
	"2a4d": "Report",
	"2a4e": "Protocol Mode",

	// Nintendo vendor-specific (Joy-Con 2 GATT)
	"649d4ac98eb74e6caf441ea54fe5f005": "Joy-Con 2 Command",
	"ab7de9be89fe49ad828f118f09df7fd2": "Joy-Con 2 Input Report",
}

var descriptorNames = map[string]string{
	"2900": "Characteristic Extended Properties",
	"2901": "Characteristic User Descriptor",
	"2902": "Client Characteristic Configuration",
	"2903": "Server Characteristic Configuration",
	"2904": "Characteristic Presentation Format",
	"2905": "Characteristic Aggregate Format",
	"2906": "Valid Range",
	"2907": "External Report Reference",
	"2908": "Report Reference",
}

// appearanceNames covers the GAP Appearance categories relevant for input
// devices plus the common generic categories seen while scanning.
var appearanceNames = map[uint16]string{
	0x0000: "Unknown",
	0x0040: "Phone",
	0x0080: "Computer",
	0x00c0: "Watch",
	0x03c0: "Human Interface Device",
	0x03c1: "Keyboard",
	0x03c2: "Mouse",
	0x03c3: "Joystick",
	0x03c4: "Gamepad",
	0x03c5: "Digitizer Tablet",
	0x03c7: "Digital Pen",
}

var companyNames = map[uint16]string{
	0x0006: "Microsoft",
	0x004c: "Apple, Inc.",
	0x0059: "Nordic Semiconductor ASA",
	0x0075: "Samsung Electronics Co. Ltd.",
	0x00e0: "Google",
	0x0553: "Nintendo Co., Ltd.",
}
