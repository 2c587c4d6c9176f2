// Package session drives a controller from link establishment through
// telemetry streaming.
//
// A session owns the whole lifecycle: connect, let the link settle, write the
// two activation commands, subscribe to input-report notifications, then idle
// until the caller cancels or the link drops. The controller starts notifying
// only after both activation writes land in order, each followed by a settle
// delay. The device is disconnected exactly once on the way out regardless of
// how the session ends.
package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/joyc/internal/device"
	"github.com/srg/joyc/internal/devicefactory"
	"github.com/srg/joyc/joycon"
)

// ProgressCallback is called when the session phase changes
type ProgressCallback func(phase string)

// Handler consumes decoded input reports as they stream in. It runs on the
// notification path; long-running work belongs behind a Collector instead.
type Handler func(*Update)

// Update is one decoded input report enriched with pointer motion.
type Update struct {
	Report     *joycon.InputReport `json:"report"`
	Delta      joycon.PointerDelta `json:"pointer_delta"`
	Seq        uint64              `json:"seq"`
	ReceivedAt time.Time           `json:"received_at"`
}

// State tracks session lifecycle progress.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateStabilizing
	StateActivating
	StateSubscribed
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateStabilizing:
		return "Stabilizing"
	case StateActivating:
		return "Activating"
	case StateSubscribed:
		return "Subscribed"
	case StateStreaming:
		return "Streaming"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrConnectionLost is returned by Run when the Bluetooth link drops while
// streaming.
var ErrConnectionLost = errors.New("connection to device lost")

// Options configures a streaming session.
type Options struct {
	// Address is the controller's BLE address. Required.
	Address string

	ConnectTimeout        time.Duration `default:"30s"`
	DescriptorReadTimeout time.Duration `default:"2s"`

	// StabilizeDelay lets the link settle after connecting, before the
	// first activation write.
	StabilizeDelay time.Duration `default:"500ms"`

	// CommandDelay follows each activation write. The controller ignores
	// the second command when it arrives too early.
	CommandDelay time.Duration `default:"500ms"`

	WriteTimeout time.Duration `default:"5s"`

	// IdleTick is the wake-up cadence of the streaming wait loop.
	IdleTick time.Duration `default:"100ms"`
}

// Stats counts what the notification path has processed so far.
type Stats struct {
	ReportsDecoded int64
	DecodeErrors   int64
}

// Session drives one controller. Create with New, run with Run; a Session is
// single-use.
type Session struct {
	opts   *Options
	logger *logrus.Logger
	dev    device.Device

	tracker  joycon.PointerTracker
	progress ProgressCallback

	state          int32
	reportsDecoded int64
	decodeErrors   int64
}

// New validates opts, applies defaults, and returns a ready-to-run session.
func New(opts *Options, logger *logrus.Logger) (*Session, error) {
	if opts == nil || opts.Address == "" {
		return nil, fmt.Errorf("device address is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	o := *opts
	defaults.SetDefaults(&o)

	return &Session{
		opts:   &o,
		logger: logger,
		dev:    devicefactory.NewDevice(o.Address, logger),
	}, nil
}

// GetDevice returns the device driven by this session.
func (s *Session) GetDevice() device.Device {
	return s.dev
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(atomic.LoadInt32(&s.state))
}

// Stats returns a snapshot of the notification path counters.
func (s *Session) Stats() Stats {
	return Stats{
		ReportsDecoded: atomic.LoadInt64(&s.reportsDecoded),
		DecodeErrors:   atomic.LoadInt64(&s.decodeErrors),
	}
}

// storeState records a transition without announcing it
func (s *Session) storeState(st State) {
	atomic.StoreInt32(&s.state, int32(st))
}

// setState records a transition and reports it as a progress phase
func (s *Session) setState(st State) {
	s.storeState(st)
	if s.progress != nil {
		s.progress(st.String())
	}
	s.logger.WithField("state", st.String()).Debug("Session state changed")
}

// Run connects to the controller, activates input streaming, and delivers
// decoded reports to handler until ctx is cancelled or the link drops.
// Context cancellation is normal termination and returns nil; a dropped link
// returns ErrConnectionLost.
func (s *Session) Run(ctx context.Context, progressCallback ProgressCallback, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("no handler provided for session")
	}
	if !atomic.CompareAndSwapInt32(&s.state, int32(StateIdle), int32(StateConnecting)) {
		return fmt.Errorf("session already started (state %s)", s.State())
	}
	s.progress = progressCallback
	if s.progress != nil {
		s.progress(StateConnecting.String())
	}

	s.logger.WithFields(logrus.Fields{
		"address": s.opts.Address,
		"timeout": s.opts.ConnectTimeout,
	}).Info("Connecting to controller")

	dev := s.dev
	connectOpts := &device.ConnectOptions{
		Address:               s.opts.Address,
		ConnectTimeout:        s.opts.ConnectTimeout,
		DescriptorReadTimeout: s.opts.DescriptorReadTimeout,
	}

	if err := dev.Connect(ctx, connectOpts); err != nil {
		if s.progress != nil {
			s.progress("Failed")
		}
		s.storeState(StateClosed)
		return err
	}

	s.setState(StateConnected)

	// Release the device exactly once, however the session ends
	defer func() {
		if err := dev.Disconnect(); err != nil {
			s.logger.WithError(err).Error("failed to disconnect device")
		}
		s.setState(StateClosed)
	}()

	// Activation writes fired immediately after the link comes up get
	// dropped by the controller
	s.setState(StateStabilizing)
	if err := sleepContext(ctx, s.opts.StabilizeDelay); err != nil {
		return nil
	}

	conn := dev.GetConnection()
	if conn == nil {
		return fmt.Errorf("%w: no connection after connect", device.ErrNotConnected)
	}

	s.setState(StateActivating)
	if err := s.activate(ctx, conn); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}

	serviceUUID, _, err := findCharacteristic(conn, joycon.InputReportCharacteristicUUID)
	if err != nil {
		return err
	}

	subOpts := []*device.SubscribeOptions{{
		Service:         serviceUUID,
		Characteristics: []string{device.NormalizeUUID(joycon.InputReportCharacteristicUUID)},
	}}

	err = conn.Subscribe(subOpts, device.StreamEveryUpdate, 0, func(rec *device.Record) {
		s.dispatch(rec, handler)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	s.setState(StateSubscribed)

	s.logger.WithFields(logrus.Fields{
		"address": s.opts.Address,
		"service": serviceUUID,
	}).Info("Input report streaming started")

	s.setState(StateStreaming)

	ticker := time.NewTicker(s.opts.IdleTick)
	defer ticker.Stop()

	connCtx := conn.ConnectionContext()
	for {
		select {
		case <-ctx.Done():
			// User cancelled
			return nil
		case <-connCtx.Done():
			return ErrConnectionLost
		case <-ticker.C:
			// Wake and re-check; notifications flow on their own goroutine
		}
	}
}

// activate writes the two activation commands in order, pausing after each.
func (s *Session) activate(ctx context.Context, conn device.Connection) error {
	serviceUUID, cmdChar, err := findCharacteristic(conn, joycon.CommandCharacteristicUUID)
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"service":        serviceUUID,
		"characteristic": cmdChar.UUID(),
	}).Debug("Located command characteristic")

	for i, cmd := range joycon.ActivationCommands() {
		s.logger.WithFields(logrus.Fields{
			"command": i + 1,
			"data":    hex.EncodeToString(cmd),
		}).Debug("Sending activation command")

		if err := cmdChar.Write(cmd, false, s.opts.WriteTimeout); err != nil {
			return fmt.Errorf("failed to send activation command %d: %w", i+1, err)
		}
		if err := sleepContext(ctx, s.opts.CommandDelay); err != nil {
			return err
		}
	}

	return nil
}

// dispatch decodes one notification record and hands the enriched update to
// the handler. Malformed payloads are logged with their raw bytes and
// skipped; the stream keeps running.
func (s *Session) dispatch(rec *device.Record, handler Handler) {
	for _, data := range rec.Values {
		report, err := joycon.DecodeInputReport(data)
		if err != nil {
			atomic.AddInt64(&s.decodeErrors, 1)
			s.logger.WithFields(logrus.Fields{
				"len": len(data),
				"raw": hex.EncodeToString(data),
			}).WithError(err).Warn("Failed to decode input report")
			continue
		}

		delta := s.tracker.Update(report)
		atomic.AddInt64(&s.reportsDecoded, 1)

		handler(&Update{
			Report:     report,
			Delta:      delta,
			Seq:        rec.Seq,
			ReceivedAt: time.UnixMicro(rec.TsUs),
		})
	}
}

// findCharacteristic locates charUUID anywhere in the discovered profile and
// returns its parent service UUID with the live characteristic. The vendor
// service UUID is not assumed; only the characteristic UUIDs are stable.
func findCharacteristic(conn device.Connection, charUUID string) (string, device.Characteristic, error) {
	target := device.NormalizeUUID(charUUID)
	for _, svc := range conn.Services() {
		for _, ch := range svc.GetCharacteristics() {
			if ch.UUID() == target {
				return svc.UUID(), ch, nil
			}
		}
	}
	return "", nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{target}}
}

// sleepContext pauses for d unless ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
