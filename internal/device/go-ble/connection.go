package goble

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/joyc/internal/bledb"
	"github.com/srg/joyc/internal/device"
	"github.com/srg/joyc/internal/groutine"
)

const (
	// DefaultChannelBuffer is the per-characteristic notification buffer.
	// At the controller's report rate this holds well over a second of data.
	DefaultChannelBuffer = 128

	// DefaultUpdateInterval is the drain interval for StreamEveryUpdate mode.
	DefaultUpdateInterval = 5 * time.Millisecond

	// DefaultBatchedInterval is the rate window for batched/aggregated modes
	// when the caller passes no MaxRate.
	DefaultBatchedInterval = 100 * time.Millisecond
)

// BLEConnection implements device.Connection over a go-ble client.
//
// mu guards connection state and the service map. writeMutex serializes
// characteristic writes on the link. The connection context is cancelled
// (with a cause) when the link drops, so every consumer learns about the
// loss the same way.
type BLEConnection struct {
	mu         sync.RWMutex
	writeMutex sync.Mutex

	logger *logrus.Logger
	subMgr *SubscriptionManager

	client    ble.Client
	connected bool
	services  map[string]*BLEService

	descriptorReadTimeout time.Duration

	ctx    context.Context
	cancel context.CancelCauseFunc
}

func NewBLEConnection(logger *logrus.Logger) *BLEConnection {
	return &BLEConnection{
		logger:   logger,
		subMgr:   NewSubscriptionManager(logger),
		services: make(map[string]*BLEService),
		ctx:      context.Background(),
	}
}

// Connect dials the peripheral, discovers its GATT profile, and populates the
// service map. Reconnecting through the same BLEConnection refreshes the live
// handles while keeping the already-discovered characteristic objects, so
// existing subscriptions survive a reconnect.
func (cn *BLEConnection) Connect(ctx context.Context, address string, opts *device.ConnectOptions) error {
	cn.mu.Lock()
	defer cn.mu.Unlock()

	if strings.TrimSpace(address) == "" {
		cn.logger.Error("Connection attempt with empty address")
		return fmt.Errorf("device address is empty")
	}

	if cn.isConnectedInternal() {
		cn.logger.WithField("address", address).Warn("Connection attempt while already connected")
		return device.ErrAlreadyConnected
	}

	cn.descriptorReadTimeout = opts.DescriptorReadTimeout
	if cn.descriptorReadTimeout == 0 {
		cn.descriptorReadTimeout = DefaultDescriptorReadTimeout
	}

	cn.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": opts.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	client, profile, err := cn.dialAndDiscover(ctx, address, opts.ConnectTimeout)
	if err != nil {
		return err
	}

	cn.populateProfile(client, profile)

	cn.client = client
	cn.connected = true

	// Derive the connection context from the caller's so cancelling the outer
	// context tears the link down too. The cause distinguishes peripheral-side
	// drops from deliberate disconnects.
	cn.ctx, cn.cancel = context.WithCancelCause(ctx)
	cn.watchLink(client)

	totalChars := 0
	for _, svc := range cn.services {
		totalChars += len(svc.Characteristics)
	}
	cn.logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        len(cn.services),
		"characteristics": totalChars,
	}).Info("BLE device connected successfully")
	return nil
}

// dialAndDiscover establishes the link and walks the GATT database. On a
// discovery failure the half-open link is cancelled before returning.
func (cn *BLEConnection) dialAndDiscover(ctx context.Context, address string, timeout time.Duration) (ble.Client, *ble.Profile, error) {
	// The factory indirection is what lets tests swap in the mock transport.
	dev, err := DeviceFactory()
	if err != nil {
		cn.logger.WithError(err).Error("Failed to create BLE device")
		return nil, nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cn.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := ble.Dial(dialCtx, ble.NewAddr(address))
	if err != nil {
		cn.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, nil, fmt.Errorf("failed to connect to device with address \"%s\": %w", address, err)
	}

	cn.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		cn.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			cn.logger.WithError(cancelErr).Warn("Failed to cancel the half-open connection")
		}
		return nil, nil, fmt.Errorf("failed to discover profile: %w", err)
	}

	return client, profile, nil
}

// populateProfile merges a discovered GATT profile into the service map.
// Caller holds mu.
func (cn *BLEConnection) populateProfile(client ble.Client, profile *ble.Profile) {
	for _, bleSvc := range profile.Services {
		svcRawUUID := bleSvc.UUID.String()
		svcUUID := device.NormalizeUUID(svcRawUUID)
		cn.logger.WithField("service_uuid", svcRawUUID).Debug("Found service UUID")

		svc, ok := cn.services[svcUUID]
		if !ok {
			svc = &BLEService{
				uuid:            svcUUID,
				knownName:       bledb.LookupService(svcRawUUID),
				Characteristics: make(map[string]*BLECharacteristic),
			}
			cn.services[svcUUID] = svc
		}

		for _, bleChar := range bleSvc.Characteristics {
			charRawUUID := bleChar.UUID.String()
			charUUID := device.NormalizeUUID(charRawUUID)
			cn.logger.WithFields(logrus.Fields{
				"service_uuid": svcUUID,
				"char_uuid":    charRawUUID,
			}).Debug("Found characteristic UUID")

			existing, ok := svc.Characteristics[charUUID]
			if ok {
				// Reconnect: refresh the live handle and reopen the update
				// channel if the previous disconnect closed it.
				existing.BLEChar = bleChar
				if existing.closed.Load() {
					if err := existing.ResetUpdates(DefaultChannelBuffer); err != nil {
						cn.logger.WithFields(logrus.Fields{
							"char_uuid": charUUID,
							"error":     err,
						}).Warn("Failed to reset the update queue during reconnection")
					}
				}
				continue
			}

			// Descriptor values are captured best-effort here; a failed read
			// never fails discovery. go-ble on Darwin leaves descriptor
			// handles unset, so values stay nil there.
			descriptors := make([]device.Descriptor, 0, len(bleChar.Descriptors))
			for _, d := range bleChar.Descriptors {
				descriptors = append(descriptors, newDescriptor(d, client, cn.descriptorReadTimeout, cn.logger))
			}
			slices.SortFunc(descriptors, func(a, b device.Descriptor) int {
				return strings.Compare(a.UUID(), b.UUID())
			})

			svc.Characteristics[charUUID] = NewCharacteristic(bleChar, DefaultChannelBuffer, cn, descriptors)
		}
	}
}

// watchLink cancels the connection context when the OS Bluetooth stack
// reports the link dropped. Not every platform client exposes the channel.
func (cn *BLEConnection) watchLink(client ble.Client) {
	linkClient, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		if cn.logger != nil {
			cn.logger.Debug("Client does not expose a Disconnected() channel")
		}
		return
	}

	groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
		select {
		case <-linkClient.Disconnected():
			if cn.logger != nil {
				cn.logger.Warn("Bluetooth stack reported disconnection, cancelling connection context")
			}
			if cn.cancel != nil {
				cn.cancel(device.ErrNotConnected)
			}
		case <-cn.ctx.Done():
		}
	})
}

// Disconnect tears the connection down in dependency order: cancel the
// streaming subscriptions, wait for their goroutines, unsubscribe the remote
// notifications, drain the per-characteristic buffers, and finally drop the
// link. Safe to call when already disconnected.
func (cn *BLEConnection) Disconnect() error {
	cn.mu.Lock()
	if cn.client == nil || !cn.connected {
		cn.mu.Unlock()
		if cn.logger != nil {
			cn.logger.Debug("Disconnect called but already disconnected")
		}
		return nil
	}

	if cn.logger != nil {
		cn.logger.WithFields(logrus.Fields{
			"connection_ptr": fmt.Sprintf("%p", cn),
			"services":       len(cn.services),
		}).Info("Disconnecting BLE device...")
	}

	cn.subMgr.CancelAll()

	// Snapshot what the teardown needs, then release the lock so nothing
	// below can deadlock against notification callbacks.
	client := cn.client
	cancel := cn.cancel
	servicesCopy := make(map[string]*BLEService, len(cn.services))
	for k, v := range cn.services {
		servicesCopy[k] = v
	}

	cn.client = nil
	cn.cancel = nil
	cn.connected = false
	cn.mu.Unlock()

	if cancel != nil {
		cancel(nil) // deliberate disconnect, no cause
	}

	cn.subMgr.Wait()

	unsubErrors := cn.unsubscribeAll(client, servicesCopy)
	if len(unsubErrors) > 0 && cn.logger != nil {
		cn.logger.WithField("errors", strings.Join(unsubErrors, "; ")).Warn("Failed to unsubscribe from some characteristics during disconnect")
	}

	for _, service := range servicesCopy {
		for _, char := range service.Characteristics {
			drainValues(char.queue)
			// Closing signals EOF to readers; Connect reopens on reconnect.
			char.CloseUpdates()
		}
	}

	var disconnectErr error
	if client != nil {
		disconnectErr = client.CancelConnection()
	}

	if cn.logger != nil {
		if disconnectErr != nil {
			cn.logger.WithField("error", disconnectErr).Warn("BLE device disconnected with errors")
		} else {
			cn.logger.Info("BLE device disconnected successfully")
		}
	}
	return disconnectErr
}

func (cn *BLEConnection) IsConnected() bool {
	cn.mu.RLock()
	defer cn.mu.RUnlock()
	return cn.isConnectedInternal()
}

// isConnectedInternal is the lock-free check. Caller holds mu.
func (cn *BLEConnection) isConnectedInternal() bool {
	return cn.client != nil && cn.connected
}

// liveClient returns the ATT client while the link is up.
func (cn *BLEConnection) liveClient() (ble.Client, error) {
	cn.mu.RLock()
	defer cn.mu.RUnlock()
	if !cn.isConnectedInternal() {
		return nil, device.ErrNotConnected
	}
	return cn.client, nil
}

// ConnectionContext returns the context cancelled when the link drops.
// context.Cause reports why.
func (cn *BLEConnection) ConnectionContext() context.Context {
	return cn.ctx
}

// Services returns the discovered services sorted by UUID.
func (cn *BLEConnection) Services() []device.Service {
	cn.mu.RLock()
	defer cn.mu.RUnlock()

	result := make([]device.Service, 0, len(cn.services))
	for _, v := range cn.services {
		result = append(result, v)
	}
	slices.SortFunc(result, func(a, b device.Service) int {
		return strings.Compare(a.UUID(), b.UUID())
	})
	return result
}

// GetService looks a service up by UUID in any accepted notation.
func (cn *BLEConnection) GetService(uuid string) (device.Service, error) {
	cn.mu.RLock()
	defer cn.mu.RUnlock()

	if svc, ok := cn.services[device.NormalizeUUID(uuid)]; ok {
		return svc, nil
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

// GetCharacteristic looks a characteristic up by service and characteristic
// UUID in any accepted notation.
func (cn *BLEConnection) GetCharacteristic(service, uuid string) (device.Characteristic, error) {
	cn.mu.RLock()
	defer cn.mu.RUnlock()

	svc, ok := cn.services[device.NormalizeUUID(service)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}

	char, ok := svc.Characteristics[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return char, nil
}

// ProcessCharacteristicNotification feeds one notification into the pipeline:
// cache the value, queue it for stream consumers, and run direct subscribers.
// The mock transport calls this to inject simulated reports.
func (cn *BLEConnection) ProcessCharacteristicNotification(char *BLECharacteristic, data []byte) {
	val := newValue(data)
	char.SetValue(data)
	char.EnqueueValue(val)
	char.notifySubscribers(val)
}

// resolveSubscribeSet validates one SubscribeOptions entry against the
// discovered profile and returns the matching characteristics keyed by
// normalized UUID. All problems are collected before failing so the caller
// sees the full picture at once. Caller holds mu.
func (cn *BLEConnection) resolveSubscribeSet(opts *device.SubscribeOptions, requireNotify bool) (map[string]*BLECharacteristic, error) {
	selected := make(map[string]*BLECharacteristic)
	var missingServices, missingChars, unsupported []string

	inService := func(uuid string) string {
		return fmt.Sprintf("%s (in service %s)", uuid, opts.Service)
	}
	canNotify := func(char *BLECharacteristic) bool {
		return char.BLEChar.Property&(ble.CharNotify|ble.CharIndicate) != 0
	}
	consider := func(label, key string, char *BLECharacteristic, found bool) {
		switch {
		case !found || char.BLEChar == nil:
			missingChars = append(missingChars, inService(label))
		case requireNotify && !canNotify(char):
			unsupported = append(unsupported, inService(label))
		default:
			selected[key] = char
		}
	}

	service, ok := cn.services[device.NormalizeUUID(opts.Service)]
	switch {
	case !ok:
		missingServices = append(missingServices, opts.Service)
	case len(opts.Characteristics) == 0:
		// No explicit list: take every characteristic in the service.
		for charUUID, char := range service.Characteristics {
			consider(charUUID, charUUID, char, true)
		}
	default:
		normalized := device.NormalizeUUIDs(opts.Characteristics)
		for i, requested := range opts.Characteristics {
			char, found := service.Characteristics[normalized[i]]
			consider(requested, normalized[i], char, found)
		}
	}

	if len(missingServices)+len(missingChars)+len(unsupported) == 0 {
		return selected, nil
	}

	var parts []string
	if len(missingServices) > 0 {
		parts = append(parts, fmt.Sprintf("missing services: %s", strings.Join(missingServices, ", ")))
	}
	if len(missingChars) > 0 {
		parts = append(parts, fmt.Sprintf("missing characteristics: %s", strings.Join(missingChars, ", ")))
	}
	if len(unsupported) > 0 {
		parts = append(parts, fmt.Sprintf("characteristics without notification support: %s", strings.Join(unsupported, ", ")))
		return nil, fmt.Errorf("validation failed - %s: %w", strings.Join(parts, "; "), device.ErrUnsupported)
	}
	return nil, fmt.Errorf("validation failed - %s", strings.Join(parts, "; "))
}

// BLESubscribe arms remote notifications (writes the CCCD) for every
// characteristic the options select. Stream delivery is layered on top by
// Subscribe; this method only turns the notification tap on.
func (cn *BLEConnection) BLESubscribe(opts *device.SubscribeOptions) error {
	cn.mu.RLock()

	if !cn.isConnectedInternal() {
		cn.mu.RUnlock()
		return device.ErrNotConnected
	}

	toSubscribe, err := cn.resolveSubscribeSet(opts, true)
	if err != nil {
		cn.mu.RUnlock()
		return fmt.Errorf("subscription validation failed: %w", err)
	}
	if len(toSubscribe) == 0 {
		cn.mu.RUnlock()
		return fmt.Errorf("no characteristics available for subscription in service %s", opts.Service)
	}

	// Copy out and release the lock before the network calls.
	chars := make(map[string]*BLECharacteristic, len(toSubscribe))
	for k, v := range toSubscribe {
		chars[k] = v
	}
	client := cn.client
	cn.mu.RUnlock()

	var failures []string
	for charUUID, char := range chars {
		if err := cn.armNotifications(client, char); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", charUUID, err))
			if cn.logger != nil {
				cn.logger.WithFields(logrus.Fields{
					"serviceUUID": opts.Service,
					"charUUID":    charUUID,
					"error":       err,
				}).Error("Failed to subscribe to characteristic notifications")
			}
			continue
		}
		if cn.logger != nil {
			cn.logger.WithFields(logrus.Fields{
				"serviceUUID": opts.Service,
				"charUUID":    charUUID,
			}).Info("Successfully subscribed to characteristic notifications")
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("subscription failures - %s", strings.Join(failures, "; "))
	}
	return nil
}

// armNotifications writes the CCCD for one characteristic and routes its
// notifications into the pipeline.
func (cn *BLEConnection) armNotifications(client ble.Client, char *BLECharacteristic) error {
	return NormalizeError(client.Subscribe(char.BLEChar, false, func(data []byte) {
		cn.ProcessCharacteristicNotification(char, data)
	}))
}

// tryUnsubscribe disarms a characteristic in both notify and indicate modes.
// Peripherals differ in which mode they armed, so failure counts only when
// both refuse.
func (cn *BLEConnection) tryUnsubscribe(client ble.Client, char *BLECharacteristic, serviceUUID, charUUID string) error {
	if char.BLEChar == nil {
		return nil
	}

	notifyErr := NormalizeError(client.Unsubscribe(char.BLEChar, false))
	indicateErr := NormalizeError(client.Unsubscribe(char.BLEChar, true))

	if notifyErr != nil && indicateErr != nil {
		if cn.logger != nil {
			cn.logger.WithFields(logrus.Fields{
				"serviceUUID": serviceUUID,
				"charUUID":    charUUID,
				"notifyErr":   notifyErr,
				"indicateErr": indicateErr,
			}).Error("Failed to unsubscribe from characteristic notifications")
		}
		return fmt.Errorf("%s: notify=%v, indicate=%v", charUUID, notifyErr, indicateErr)
	}

	if cn.logger != nil {
		cn.logger.WithField("service", serviceUUID).
			WithField("characteristic", charUUID).
			Debug("Unsubscribed from characteristic notifications")
	}
	return nil
}

// unsubscribeAll disarms every characteristic in services, collecting error
// messages instead of stopping at the first. Called without locks held.
func (cn *BLEConnection) unsubscribeAll(client ble.Client, services map[string]*BLEService) []string {
	if client == nil {
		return nil
	}

	var errs []string
	for serviceUUID, service := range services {
		for charUUID, char := range service.Characteristics {
			if err := cn.tryUnsubscribe(client, char, serviceUUID, charUUID); err != nil {
				errs = append(errs, fmt.Sprintf("%s (in service %s): %v", charUUID, serviceUUID, err))
			}
		}
	}
	return errs
}
