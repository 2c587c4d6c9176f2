package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ScanningDevice can listen for BLE advertisements.
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Advertisement exposes the fields of a received BLE advertisement.
type Advertisement interface {
	Addr() string
	RSSI() int

	LocalName() string
	Connectable() bool

	// TxPowerLevel is 127 when the advertisement carried no TX power.
	TxPowerLevel() int

	ServiceData() []struct {
		UUID string
		Data []byte
	}
	ManufacturerData() []byte

	Services() []string
	SolicitedService() []string
	OverflowService() []string
}

// DeviceInfo is the advertisement-derived snapshot of a peripheral. It is
// valid before any connection exists and is refreshed by Update.
//
//nolint:revive // the stutter reads fine at call sites: device.DeviceInfo
type DeviceInfo interface {
	ID() string
	Address() string

	// Name is the advertised or GAP resolved name, the address when
	// neither was ever seen.
	Name() string

	RSSI() int
	IsConnectable() bool

	// TxPower is nil until an advertisement carries a usable level.
	TxPower() *int

	AdvertisedServices() []string
	ManufacturerData() []byte
	ServiceData() map[string][]byte
}

// Device is a connectable peripheral.
type Device interface {
	DeviceInfo

	// Connect dials the peripheral and discovers its GATT profile. A nil
	// opts uses the default connect timeout.
	Connect(ctx context.Context, opts *ConnectOptions) error
	Disconnect() error
	IsConnected() bool

	// Update folds a fresh advertisement into the snapshot.
	Update(adv Advertisement)

	GetConnection() Connection
}

// PeripheralDevice is a Device that can also scan. The mock backend satisfies
// this so one object plays both central and peripheral in tests.
type PeripheralDevice interface {
	Device
	ScanningDevice
}

// Connection is an established BLE link with a discovered GATT profile.
type Connection interface {
	Services() []Service
	GetService(uuid string) (Service, error)
	GetCharacteristic(service, uuid string) (Characteristic, error)
	Subscribe(opts []*SubscribeOptions, pattern StreamMode, maxRate time.Duration, callback func(*Record)) error

	// ConnectionContext returns a context that is canceled when the link drops.
	// context.Cause reports the reason (ErrNotConnected on peripheral-side drops).
	ConnectionContext() context.Context
}

// Service is a discovered GATT service.
type Service interface {
	UUID() string

	// KnownName is the Bluetooth SIG assigned name, empty for vendor
	// specific services.
	KnownName() string

	GetCharacteristics() []Characteristic
}

// Characteristic is a discovered GATT characteristic with its read and write
// operations. Timeouts bound the ATT round trip, not queueing in the backend.
type Characteristic interface {
	UUID() string
	KnownName() string
	GetProperties() Properties
	GetDescriptors() []Descriptor

	Read(timeout time.Duration) ([]byte, error)
	Write(data []byte, withResponse bool, timeout time.Duration) error
}

// Descriptor is a discovered GATT descriptor. Value returns the bytes cached
// at discovery time, nil when the read was skipped or failed.
type Descriptor interface {
	UUID() string
	KnownName() string
	Value() []byte
}

// Property is a single GATT characteristic property bit.
type Property interface {
	Value() int
	KnownName() string
}

// Properties is the decoded property bitfield of a characteristic. Each
// accessor returns nil when the bit is not set.
type Properties interface {
	Broadcast() Property
	Read() Property

	Write() Property
	WriteWithoutResponse() Property

	Notify() Property
	Indicate() Property

	AuthenticatedSignedWrites() Property
	ExtendedProperties() Property
}

// SubscribeOptions names one service and the characteristics to subscribe to
// within it. An empty characteristic list means every notifying one.
type SubscribeOptions struct {
	Service         string
	Characteristics []string // can be empty
}

// ConnectOptions defines BLE connection options.
type ConnectOptions struct {
	Address        string
	ConnectTimeout time.Duration

	// DescriptorReadTimeout bounds descriptor value reads during profile
	// discovery; zero skips the reads entirely.
	DescriptorReadTimeout time.Duration

	Services []SubscribeOptions
}

// StreamMode selects how subscription notifications are delivered to the
// Subscribe callback.
type StreamMode int

const (
	// StreamEveryUpdate delivers one Record per notification.
	StreamEveryUpdate StreamMode = iota
	// StreamBatched collects notifications per rate window into BatchValues.
	StreamBatched
	// StreamAggregated delivers at most one value per characteristic per window.
	StreamAggregated
)

// Record is one delivery to a Subscribe callback. Values carries one value
// per characteristic in every-update and aggregated modes; BatchValues
// carries the whole window in batched mode. Only one of the two is set.
type Record struct {
	TsUs  int64
	Seq   uint64
	Flags uint32

	Values      map[string][]byte
	BatchValues map[string][][]byte
}

// NotFoundError reports a missing GATT resource. Resource is one of
// "service", "characteristic", "descriptor"; UUIDs holds the lookup path,
// parent first.
type NotFoundError struct {
	Resource string
	UUIDs    []string
}

func (e *NotFoundError) Error() string {
	switch len(e.UUIDs) {
	case 0:
		return fmt.Sprintf("%s not found", e.Resource)
	case 1:
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	parent := "service"
	if e.Resource == "descriptor" {
		parent = "characteristic"
	}
	return fmt.Sprintf("%s %q not found in %s %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], parent, e.UUIDs[0])
}

// ConnectionState names the kind of connection-state failure.
type ConnectionState string

const (
	// NotConnected: the operation requires a live connection.
	NotConnected ConnectionState = "not_connected"
	// AlreadyConnected: Connect was called on a live connection.
	AlreadyConnected ConnectionState = "already_connected"
	// NotInitialized: the device has no connection attached.
	NotInitialized ConnectionState = "not_initialized"
)

// ConnectionError is a connection-state failure. Compare with errors.Is
// against the sentinel values below; Is matches on State alone so wrapped
// instances with extra context still compare equal.
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg != "" {
		return string(e.State) + ": " + e.Msg
	}
	return string(e.State)
}

// Is matches ConnectionError values by State.
func (e *ConnectionError) Is(target error) bool {
	other, ok := target.(*ConnectionError)
	if !ok || e == nil {
		return false
	}
	return e.State == other.State
}

var (
	// ErrNotConnected reports an operation that requires a live connection.
	ErrNotConnected = &ConnectionError{State: NotConnected}
	// ErrAlreadyConnected reports a Connect on an already live connection.
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	// ErrNotInitialized reports use of a device with no connection attached.
	ErrNotInitialized = &ConnectionError{State: NotInitialized}
)

// Operation errors.
var (
	ErrTimeout      = errors.New("timeout")
	ErrUnsupported  = errors.New("unsupported")
	ErrBluetoothOff = errors.New("bluetooth is turned off")
)

// NormalizeError maps known backend error strings onto the sentinel errors
// above so callers can use errors.Is regardless of which library produced
// the failure. The original error stays wrapped for context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	switch msg := err.Error(); {
	case foldContains(msg, "device not connected"):
		return fmt.Errorf("%w: %s", ErrNotConnected, err)
	case foldContains(msg, "device already connected"):
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, err)
	case foldContains(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %s", ErrNotInitialized, err)
	default:
		return err
	}
}

func foldContains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConnectionState reports whether err is a ConnectionError with the given state.
func IsConnectionState(err error, state ConnectionState) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr) && connErr.State == state
}
