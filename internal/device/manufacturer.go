package device

import (
	"encoding/binary"
	"fmt"

	"github.com/srg/joyc/internal/bledb"
	"github.com/srg/joyc/joycon"
)

// UnknownCompanyID asks ParseManufacturerData to take the company ID from
// the payload itself (first two bytes, little-endian) instead of trusting
// the caller. Pass it when nothing else identifies the vendor.
const UnknownCompanyID uint16 = 0

// ManufacturerDataParser decodes one company's manufacturer data layout.
type ManufacturerDataParser func([]byte) (any, error)

// VendorInfo is implemented by parsed manufacturer data that can name its
// vendor.
type VendorInfo interface {
	VendorID() uint16
	VendorName() string
}

// companyParsers routes a company ID to its decoder.
var companyParsers = map[uint16]ManufacturerDataParser{
	joycon.CompanyID: parseNintendoManufacturerData,
}

// ParseManufacturerData decodes rawData, the manufacturer-specific AD
// structure with the company ID still in front, using the decoder registered
// for companyID. With UnknownCompanyID the company ID is read out of
// rawData[0:2] per the BLE convention; not every vendor honors that
// convention, so the extracted ID is best-effort.
//
// Companies without a registered decoder yield (nil, nil). An error means
// the data was malformed or too short, never merely unrecognized.
func ParseManufacturerData(companyID uint16, rawData []byte) (any, error) {
	id := companyID
	if id == UnknownCompanyID {
		if len(rawData) < 2 {
			return nil, fmt.Errorf("manufacturer data too short: %d bytes", len(rawData))
		}
		id = binary.LittleEndian.Uint16(rawData[:2])
	}

	parser, ok := companyParsers[id]
	if !ok {
		return nil, nil
	}
	return parser(rawData)
}

// IsParsableManufacturerData reports whether a decoder is registered for the
// company ID.
func IsParsableManufacturerData(companyID uint16) bool {
	_, ok := companyParsers[companyID]
	return ok
}

// -----------------------------------------------------------------------------
// Nintendo (Joy-Con 2) Manufacturer Data
// -----------------------------------------------------------------------------

// NintendoManufacturerData represents parsed Nintendo controller manufacturer data.
//
// Format:
//   - Bytes 0-1: Company ID (0x0553, little-endian)
//   - Bytes 2+:  Controller payload; byte at payload offset 5 carries the
//     side marker (0x67 = Left, 0x66 = Right, 0x73 = GrabController)
type NintendoManufacturerData struct {
	Side    joycon.Side
	Payload []byte // payload with the company ID stripped
}

// VendorID implements VendorInfo interface
func (n *NintendoManufacturerData) VendorID() uint16 {
	return joycon.CompanyID
}

// VendorName implements VendorInfo interface
func (n *NintendoManufacturerData) VendorName() string {
	return bledb.LookupCompany(joycon.CompanyID)
}

// parseNintendoManufacturerData parses Nintendo controller manufacturer data.
// Short payloads are not an error: the side simply classifies as Unknown.
func parseNintendoManufacturerData(data []byte) (any, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("nintendo manufacturer data too short: %d bytes, expected at least 2", len(data))
	}

	payload := data[2:]
	return &NintendoManufacturerData{
		Side:    joycon.ClassifySide(payload),
		Payload: payload,
	}, nil
}
