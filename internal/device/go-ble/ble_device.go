package goble

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/srg/joyc/internal/device"
)

const (
	// DefaultBLEWriteChunkSize is the largest payload of a single write.
	// BLE 4.0/4.1 guarantees an ATT_MTU of 23 bytes, 20 of payload, so
	// 20-byte chunks work against every controller revision.
	DefaultBLEWriteChunkSize = 20

	// DefaultBLEWriteDelay spaces consecutive write chunks so the
	// peripheral's receive buffer keeps up.
	DefaultBLEWriteDelay = 10 * time.Millisecond
)

// BLEDevice implements device.Device. The advertisement snapshot fields are
// guarded by mu; the embedded connection has its own locking.
type BLEDevice struct {
	mu     sync.RWMutex
	logger *logrus.Logger

	connection *BLEConnection

	id          string
	address     string
	name        string
	rssi        int
	txPower     *int
	connectable bool
	advServices []string
	mfgData     []byte
	svcData     map[string][]byte
}

// NewBLEDevice creates a device known only by address. The connection object
// exists up front so GetConnection is valid before Connect.
func NewBLEDevice(address string, logger *logrus.Logger) *BLEDevice {
	if logger == nil {
		logger = logrus.New()
	}

	dev := &BLEDevice{
		logger:     logger,
		connection: NewBLEConnection(logger),
		id:         address,
		address:    address,
	}
	dev.advServices = make([]string, 0)
	dev.svcData = make(map[string][]byte)
	return dev
}

// NewBLEDeviceFromAdvertisement creates a device seeded with everything the
// advertisement carried.
func NewBLEDeviceFromAdvertisement(adv device.Advertisement, logger *logrus.Logger) *BLEDevice {
	dev := NewBLEDevice(adv.Addr(), logger)

	dev.name = adv.LocalName()
	dev.rssi = adv.RSSI()
	dev.connectable = adv.Connectable()
	dev.mfgData = adv.ManufacturerData()

	for _, uuid := range adv.Services() {
		dev.advServices = append(dev.advServices, device.NormalizeUUID(uuid))
	}
	slices.Sort(dev.advServices)

	for _, svcData := range adv.ServiceData() {
		dev.svcData[device.NormalizeUUID(svcData.UUID)] = svcData.Data
	}

	dev.absorbTxPower(adv.TxPowerLevel())

	if dev.name == "" {
		dev.name = nameFromManufacturerData(adv.ManufacturerData())
	}

	return dev
}

// absorbTxPower records the TX power unless it is the BLE "not available"
// marker (127). Caller holds mu or has exclusive access.
func (b *BLEDevice) absorbTxPower(level int) {
	if level == 127 {
		return
	}
	b.txPower = &level
}

func (b *BLEDevice) ID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.id
}

func (b *BLEDevice) Address() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.address
}

// Name returns the best known name, falling back to the address for devices
// that never advertised one.
func (b *BLEDevice) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.name == "" {
		return b.address
	}
	return b.name
}

func (b *BLEDevice) RSSI() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rssi
}

func (b *BLEDevice) TxPower() *int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.txPower
}

func (b *BLEDevice) IsConnectable() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectable
}

// AdvertisedServices returns a copy of the normalized, sorted service UUIDs
// seen in advertisements so far.
func (b *BLEDevice) AdvertisedServices() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.advServices...)
}

func (b *BLEDevice) ManufacturerData() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mfgData
}

func (b *BLEDevice) ServiceData() map[string][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.svcData
}

// Connect dials the peripheral and discovers its profile, then refreshes the
// device name from GAP.
func (b *BLEDevice) Connect(ctx context.Context, opts *device.ConnectOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connection == nil {
		return fmt.Errorf("%w: cannot connect", device.ErrNotInitialized)
	}

	connectOpts := opts
	if connectOpts == nil {
		connectOpts = &device.ConnectOptions{ConnectTimeout: 30 * time.Second}
	}

	if err := b.connection.Connect(ctx, b.address, connectOpts); err != nil {
		return err
	}

	b.refreshNameFromGAP()
	return nil
}

// refreshNameFromGAP reads the GAP Device Name characteristic (0x2A00) when
// the profile carries it. A readable GAP name is more authoritative than
// whatever the advertisement said. Caller holds mu.
func (b *BLEDevice) refreshNameFromGAP() {
	char, err := b.connection.GetCharacteristic("1800", "2a00")
	if err != nil {
		return
	}

	data, err := char.Read(DefaultReadTimeout)
	if err != nil || len(data) == 0 {
		return
	}

	name := strings.TrimSpace(strings.TrimRight(string(data), "\x00"))
	if !isPlausibleDeviceName(name) {
		return
	}

	b.name = name
	b.logger.WithField("address", b.address).
		WithField("name", name).
		Debug("Resolved device name from GAP")
}

func (b *BLEDevice) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connection == nil {
		return fmt.Errorf("%w: cannot disconnect", device.ErrNotInitialized)
	}

	return b.connection.Disconnect()
}

func (b *BLEDevice) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.isConnectedInternal()
}

// isConnectedInternal is the lock-free variant for callers already holding mu.
func (b *BLEDevice) isConnectedInternal() bool {
	return b.connection != nil && b.connection.IsConnected()
}

// Update folds a fresh advertisement into the snapshot. RSSI always updates;
// names, services, and service data only accumulate, so a sparse follow-up
// advertisement never erases what an earlier one carried.
func (b *BLEDevice) Update(adv device.Advertisement) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rssi = adv.RSSI()

	if name := adv.LocalName(); name != "" {
		b.name = name
	} else if b.name == "" {
		b.name = nameFromManufacturerData(adv.ManufacturerData())
	}

	if manufData := adv.ManufacturerData(); len(manufData) > 0 {
		b.mfgData = manufData
	}

	b.mergeServices(adv.Services())

	for _, svcData := range adv.ServiceData() {
		b.svcData[device.NormalizeUUID(svcData.UUID)] = svcData.Data
	}

	b.absorbTxPower(adv.TxPowerLevel())
}

// mergeServices adds newly advertised service UUIDs to the sorted list.
// Caller holds mu.
func (b *BLEDevice) mergeServices(uuids []string) {
	added := false
	for _, svc := range uuids {
		normalized := device.NormalizeUUID(svc)
		if !b.hasServiceUUID(normalized) {
			b.advServices = append(b.advServices, normalized)
			added = true
		}
	}
	if added {
		slices.Sort(b.advServices)
	}
}

func (b *BLEDevice) GetConnection() device.Connection {
	return b.connection
}

// hasServiceUUID reports whether uuid is already known, from the connected
// profile or the advertised list. Caller holds mu.
func (b *BLEDevice) hasServiceUUID(uuid string) bool {
	if b.isConnectedInternal() {
		for _, svc := range b.connection.services {
			if strings.EqualFold(svc.UUID(), uuid) {
				return true
			}
		}
	}

	return slices.Contains(b.advServices, uuid)
}

// nameFromManufacturerData pulls a device name out of manufacturer data when
// a vendor embeds one as plain ASCII. Returns the first printable run that
// passes the name plausibility check, "" otherwise.
func nameFromManufacturerData(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	for i := 0; i < len(data)-3; i++ {
		if !isPrintableASCII(data[i]) {
			continue
		}
		end := i
		for end < len(data) && end < i+32 && isPrintableASCII(data[end]) {
			end++
		}
		name := strings.TrimSpace(string(data[i:end]))
		if isPlausibleDeviceName(name) {
			return name
		}
		i = end
	}

	return ""
}

func isPrintableASCII(b byte) bool {
	return b >= 32 && b <= 126
}

// isPlausibleDeviceName filters out the byte runs that happen to decode as
// ASCII but are not names: too short, too long, or with no letters at all.
func isPlausibleDeviceName(name string) bool {
	if len(name) < 3 || len(name) > 32 {
		return false
	}

	for _, r := range name {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// deviceInfoJSON is the serialized form of a BLEDevice.
type deviceInfoJSON struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Address            string            `json:"address"`
	RSSI               int               `json:"rssi"`
	TxPower            *int              `json:"txPower,omitempty"`
	Connectable        bool              `json:"connectable"`
	AdvertisedServices []string          `json:"advertisedServices,omitempty"`
	ManufacturerData   []byte            `json:"manufacturerData,omitempty"`
	ServiceData        map[string][]byte `json:"serviceData,omitempty"`
}

// MarshalJSON serializes the snapshot with the same name fallback Name uses.
func (b *BLEDevice) MarshalJSON() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	name := b.name
	if name == "" {
		name = b.address
	}

	return json.Marshal(&deviceInfoJSON{
		ID:                 b.id,
		Name:               name,
		Address:            b.address,
		RSSI:               b.rssi,
		TxPower:            b.txPower,
		Connectable:        b.connectable,
		AdvertisedServices: b.advServices,
		ManufacturerData:   b.mfgData,
		ServiceData:        b.svcData,
	})
}
