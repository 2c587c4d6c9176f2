// Package discovery implements Joy-Con 2 controller discovery over BLE.
//
// Controllers are recognized by the Nintendo company identifier in their
// manufacturer data rather than by advertised name, which varies with pairing
// state and firmware localization. Find runs a callback-driven scan first and
// falls back to a bounded enumerated pass for Bluetooth stacks that surface
// manufacturer data only at the device metadata level.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/joyc/internal/device"
	"github.com/srg/joyc/internal/devicefactory"
	"github.com/srg/joyc/internal/groutine"
	"github.com/srg/joyc/internal/ringchan"
	"github.com/srg/joyc/joycon"
)

// ProgressCallback receives scan phase transitions for display.
type ProgressCallback func(phase string)

// DeviceEventType says whether an advertisement created a new table entry
// or refreshed an existing one.
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

// DeviceEvent reports one advertisement applied to the device table
type DeviceEvent struct {
	Type       DeviceEventType
	DeviceInfo device.DeviceInfo
	Timestamp  time.Time
}

// DeviceEntry pairs a discovered device with the time it was last seen
type DeviceEntry struct {
	Device   device.DeviceInfo `json:"device"`
	LastSeen time.Time         `json:"lastSeen"`
}

// Record describes one discovered controller: the address to connect to plus
// the identity decoded from its manufacturer data.
type Record struct {
	Address             string      `json:"address"`
	Name                string      `json:"name"`
	RSSI                int         `json:"rssi"`
	Side                joycon.Side `json:"side"`
	ManufacturerPayload []byte      `json:"manufacturerPayload,omitempty"`
}

// ErrNotFound is returned when both discovery strategies complete without a
// manufacturer match.
var ErrNotFound = errors.New("no controller found")

// Scanner handles BLE controller discovery
type Scanner struct {
	devices *hashmap.Map[string, *trackedDevice]
	events  *ringchan.RingChannel[DeviceEvent]
	logger  *logrus.Logger

	scanOptions *ScanOptions
}

// trackedDevice pairs a live device with its most recent advertisement time
type trackedDevice struct {
	dev      device.Device
	lastSeen time.Time
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	// Duration bounds the callback scan. Zero means the caller's context
	// bounds it instead.
	Duration time.Duration

	// FallbackDuration bounds the enumerated pass Find runs when the
	// callback scan captures nothing.
	FallbackDuration time.Duration

	// PollInterval is the cadence at which Find re-checks for a captured
	// match while the callback scan is running.
	PollInterval time.Duration

	DuplicateFilter bool
	ServiceUUIDs    []string

	// AllowList and BlockList filter by address. The block list wins when
	// an address appears on both.
	AllowList []string
	BlockList []string
}

// DefaultScanOptions returns the timing a nil options argument gets.
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:         10 * time.Second,
		FallbackDuration: 5 * time.Second,
		PollInterval:     100 * time.Millisecond,
		DuplicateFilter:  true,
	}
}

// NewScanner creates a new controller scanner. A Scanner runs one discovery
// pass at a time.
func NewScanner(logger *logrus.Logger) (*Scanner, error) {
	if logger == nil {
		logger = logrus.New()
	}

	s := &Scanner{
		events: ringchan.NewRingChannel[DeviceEvent](100),
		logger: logger,
	}
	return s, nil
}

// normalizeScanArgs substitutes defaults for a nil options struct and a nil
// progress callback.
func normalizeScanArgs(opts *ScanOptions, cb ProgressCallback) (*ScanOptions, ProgressCallback) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	if cb == nil {
		cb = func(string) {}
	}
	return opts, cb
}

// scanFailed filters out the context errors a bounded scan ends with.
func scanFailed(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Scan performs one bounded discovery pass and returns every device seen,
// keyed by address.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) (map[string]DeviceEntry, error) {
	s.devices = hashmap.New[string, *trackedDevice]()
	opts, progressCallback = normalizeScanArgs(opts, progressCallback)

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progressCallback("Scanning")

	scanner, err := devicefactory.DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	scanCtx := ctx
	if d := opts.Duration; d > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	s.scanOptions = opts
	defer func() {
		s.scanOptions = nil
	}()
	err = scanner.Scan(scanCtx, opts.DuplicateFilter, s.handleAdvertisement)
	if scanFailed(err) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
	progressCallback("Processing results")

	out := make(map[string]DeviceEntry, s.devices.Len())
	s.devices.Range(func(addr string, td *trackedDevice) bool {
		out[addr] = DeviceEntry{Device: td.dev, LastSeen: td.lastSeen}
		return true
	})
	return out, nil
}

// Find discovers the first controller advertising the Nintendo company
// identifier and returns its connection record.
//
// Two strategies run in order. A callback scan reacts to advertisements as
// they arrive and exits the moment one matches, polling at PollInterval for
// up to Duration. If that captures nothing, one enumerated pass bounded by
// FallbackDuration re-scans and inspects device metadata, which covers
// stacks that strip manufacturer data from advertisement callbacks. When
// both come up empty, Find returns ErrNotFound.
func (s *Scanner) Find(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) (*Record, error) {
	opts, progressCallback = normalizeScanArgs(opts, progressCallback)
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}

	s.devices = hashmap.New[string, *trackedDevice]()

	s.logger.WithFields(logrus.Fields{
		"scan_window":     opts.Duration,
		"fallback_window": opts.FallbackDuration,
	}).Info("Searching for controller...")

	progressCallback("Scanning")

	scanner, err := devicefactory.DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	var scanCtx context.Context
	var cancelScan context.CancelFunc
	if opts.Duration > 0 {
		scanCtx, cancelScan = context.WithTimeout(ctx, opts.Duration)
	} else {
		scanCtx, cancelScan = context.WithCancel(ctx)
	}
	defer cancelScan()

	s.scanOptions = opts
	defer func() {
		s.scanOptions = nil
	}()

	found := make(chan *Record, 1)
	scanDone := make(chan error, 1)

	groutine.Go(ctx, "discovery-callback-scan", func(context.Context) {
		scanDone <- scanner.Scan(scanCtx, opts.DuplicateFilter, func(adv device.Advertisement) {
			s.handleAdvertisement(adv)
			if rec, ok := s.matchAdvertisement(adv); ok {
				select {
				case found <- rec:
					// Stop scanning the moment a controller is captured
					cancelScan()
				default:
				}
			}
		})
	})

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var scanErr error
waitLoop:
	for {
		select {
		case rec := <-found:
			cancelScan()
			<-scanDone
			s.logFound(rec, "callback")
			return rec, nil
		case <-ticker.C:
			// Poll again; the found channel wakes this loop as soon as
			// the handler captures a match.
		case scanErr = <-scanDone:
			break waitLoop
		case <-scanCtx.Done():
			scanErr = <-scanDone
			break waitLoop
		}
	}

	// A match can land in the same instant the window closes; prefer it
	// over running the fallback pass.
	select {
	case rec := <-found:
		s.logFound(rec, "callback")
		return rec, nil
	default:
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scanFailed(scanErr) {
		return nil, fmt.Errorf("scan failed: %w", scanErr)
	}

	s.logger.WithField("fallback_window", opts.FallbackDuration).
		Info("No controller captured during callback scan, trying enumerated discovery")

	fallbackOpts := *opts
	fallbackOpts.Duration = opts.FallbackDuration
	entries, err := s.Scan(ctx, &fallbackOpts, progressCallback)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if rec, ok := s.match(entry.Device, entry.Device.ManufacturerData()); ok {
			s.logFound(rec, "enumerated")
			return rec, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return nil, ErrNotFound
}

// handleAdvertisement updates existing or adds a new device
func (s *Scanner) handleAdvertisement(adv device.Advertisement) {
	deviceID := adv.Addr()
	now := time.Now()

	tracked, existing := s.devices.Get(deviceID)
	if !existing {
		if !s.shouldIncludeDevice(adv, s.scanOptions) {
			return
		}
		tracked, existing = s.devices.GetOrInsert(deviceID, &trackedDevice{
			dev: devicefactory.NewDeviceFromAdvertisement(adv, s.logger),
		})
	}
	tracked.lastSeen = now

	event := DeviceEvent{
		DeviceInfo: tracked.dev,
		Timestamp:  now,
	}

	if existing {
		tracked.dev.Update(adv)
		event.Type = EventUpdated
	} else {
		event.Type = EventNew
		s.logger.WithFields(logrus.Fields{
			"device":  tracked.dev.Name(),
			"address": tracked.dev.Address(),
			"rssi":    tracked.dev.RSSI(),
		}).Info("Discovered new device")
	}
	s.events.ForceSend(event)
}

// matchAdvertisement applies the manufacturer filter to one advertisement.
// Manufacturer data is read from the advertisement first and from the tracked
// device as a fallback, since some platforms carry it only in the accumulated
// device metadata.
func (s *Scanner) matchAdvertisement(adv device.Advertisement) (*Record, bool) {
	tracked, ok := s.devices.Get(adv.Addr())
	if !ok {
		// Filtered out of the device table
		return nil, false
	}

	raw := adv.ManufacturerData()
	if len(raw) == 0 {
		raw = tracked.dev.ManufacturerData()
	}

	return s.match(tracked.dev, raw)
}

// match builds a Record when raw manufacturer data carries the Nintendo
// company identifier.
func (s *Scanner) match(info device.DeviceInfo, raw []byte) (*Record, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	parsed, err := device.ParseManufacturerData(device.UnknownCompanyID, raw)
	if err != nil || parsed == nil {
		return nil, false
	}

	nintendo, ok := parsed.(*device.NintendoManufacturerData)
	if !ok {
		return nil, false
	}

	return &Record{
		Address:             info.Address(),
		Name:                info.Name(),
		RSSI:                info.RSSI(),
		Side:                nintendo.Side,
		ManufacturerPayload: nintendo.Payload,
	}, true
}

func (s *Scanner) logFound(rec *Record, strategy string) {
	s.logger.WithFields(logrus.Fields{
		"address":  rec.Address,
		"name":     rec.Name,
		"side":     rec.Side.String(),
		"strategy": strategy,
	}).Info("Controller found")
}

// shouldIncludeDevice applies the allow, block, and service filters.
func (s *Scanner) shouldIncludeDevice(adv device.Advertisement, opts *ScanOptions) bool {
	if opts == nil {
		return true
	}

	addr := adv.Addr()
	if slices.Contains(opts.BlockList, addr) {
		return false
	}
	if len(opts.AllowList) > 0 && !slices.Contains(opts.AllowList, addr) {
		return false
	}
	if len(opts.ServiceUUIDs) > 0 && !advertisesAny(adv, opts.ServiceUUIDs) {
		return false
	}
	return true
}

// advertisesAny reports whether the advertisement carries at least one of
// the wanted service UUIDs, comparing in normalized form.
func advertisesAny(adv device.Advertisement, wanted []string) bool {
	advertised := device.NormalizeUUIDs(adv.Services())
	for _, uuid := range device.NormalizeUUIDs(wanted) {
		if slices.Contains(advertised, uuid) {
			return true
		}
	}
	return false
}

// Events exposes the live discovery feed. The channel drops its oldest
// entry instead of blocking the scan when the consumer falls behind.
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}
