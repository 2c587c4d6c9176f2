package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/joyc/internal/device"
)

func newRecord(mode device.StreamMode) *device.Record {
	r := &device.Record{TsUs: time.Now().UnixMicro()}
	switch mode {
	case device.StreamBatched:
		r.BatchValues = make(map[string][][]byte)
	default:
		r.Values = make(map[string][]byte)
	}
	return r
}

// takeOne pops a single queued value without blocking, nil when the queue is
// empty or closed.
func takeOne(char *BLECharacteristic) *BLEValue {
	select {
	case v := <-char.queue:
		return v
	default:
		return nil
	}
}

// takeQueued empties a characteristic's queue without blocking.
func takeQueued(char *BLECharacteristic) []*BLEValue {
	var vals []*BLEValue
	for {
		v := takeOne(char)
		if v == nil {
			return vals
		}
		vals = append(vals, v)
	}
}

// Subscription is one active stream: a set of characteristics whose queued
// notifications are delivered to Callback according to Mode.
type Subscription struct {
	Targets []*BLECharacteristic
	Mode    device.StreamMode
	MaxRate time.Duration
	Deliver func(*device.Record)

	ctx    context.Context
	cancel context.CancelFunc
}

// SubscriptionManager owns the delivery goroutines so Disconnect can cancel
// them all and wait for the last one to exit before tearing the link down.
type SubscriptionManager struct {
	mu     sync.Mutex
	logger *logrus.Logger
	subs   []*Subscription
	wg     sync.WaitGroup
}

func NewSubscriptionManager(logger *logrus.Logger) *SubscriptionManager {
	return &SubscriptionManager{logger: logger}
}

// Add registers sub and starts its delivery goroutine. The manager tracks the
// goroutine's lifetime; Wait blocks until every runner has returned.
func (m *SubscriptionManager) Add(sub *Subscription, runner func(*Subscription)) {
	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		runner(sub)
	}()
}

// CancelAll cancels every active subscription and clears the list.
func (m *SubscriptionManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	m.subs = nil
}

// Wait blocks until every delivery goroutine has exited.
func (m *SubscriptionManager) Wait() {
	if m.logger != nil {
		m.logger.Debug("Waiting for stream goroutines to finish...")
	}
	m.wg.Wait()
	if m.logger != nil {
		m.logger.Debug("Stream goroutines finished")
	}
}

// collectStreamTargets resolves every SubscribeOptions entry against the
// profile and flattens the result. Fails on the first entry with problems.
func (cn *BLEConnection) collectStreamTargets(opts []*device.SubscribeOptions) ([]*BLECharacteristic, error) {
	cn.mu.Lock()
	defer cn.mu.Unlock()

	if !cn.isConnectedInternal() {
		return nil, fmt.Errorf("%w: subscribe requires an active connection", device.ErrNotConnected)
	}

	var selected []*BLECharacteristic
	for _, opt := range opts {
		chars, err := cn.resolveSubscribeSet(opt, true)
		if err != nil {
			return nil, fmt.Errorf("subscription %w", err)
		}
		for _, char := range chars {
			selected = append(selected, char)
		}
	}

	if len(selected) == 0 {
		return nil, fmt.Errorf("no characteristics available for subscription across all specified services")
	}
	return selected, nil
}

// Subscribe arms notifications for the selected characteristics and starts a
// delivery goroutine that feeds callback according to mode:
//
//	connection.Subscribe([]*device.SubscribeOptions{
//	  {Service: "fff0", Characteristics: []string{"ab7de9be-89fe-49ad-828f-118f09df7fd2"}},
//	}, device.StreamEveryUpdate, 0, func(record *device.Record) { ... })
//
// maxRate is the delivery window for batched/aggregated modes and ignored for
// StreamEveryUpdate. The subscription ends when the connection context does.
func (cn *BLEConnection) Subscribe(opts []*device.SubscribeOptions, mode device.StreamMode, maxRate time.Duration, callback func(*device.Record)) error {
	if callback == nil {
		return fmt.Errorf("no callback provided for subscription")
	}
	if len(opts) == 0 {
		return fmt.Errorf("no services specified for subscription")
	}

	cn.logger.WithFields(logrus.Fields{
		"services": len(opts),
		"mode":     mode,
	}).Debug("Subscribe called")

	selected, err := cn.collectStreamTargets(opts)
	if err != nil {
		return err
	}

	// BLESubscribe takes its own locks, so the CCCD writes happen unlocked.
	for _, opt := range opts {
		if err := cn.BLESubscribe(opt); err != nil {
			return fmt.Errorf("failed to enable BLE notifications: %w", err)
		}
	}

	cn.mu.Lock()
	defer cn.mu.Unlock()

	sub := &Subscription{
		Targets: selected,
		Mode:    mode,
		MaxRate: maxRate,
		Deliver: callback,
	}
	sub.ctx, sub.cancel = context.WithCancel(cn.ctx)

	cn.subMgr.Add(sub, cn.runSubscription)
	return nil
}

// runSubscription is the delivery loop. It polls the per-characteristic
// update queues on a ticker and hands records to the callback; a panicking
// callback kills the subscription, not the process.
func (cn *BLEConnection) runSubscription(sub *Subscription) {
	defer func() {
		if r := recover(); r != nil {
			if cn.logger != nil {
				cn.logger.WithFields(logrus.Fields{
					"panic":          r,
					"connection_ptr": fmt.Sprintf("%p", cn),
				}).Error("Subscription callback panicked")
			}
		}
		if cn.logger != nil {
			cn.logger.WithField("connection_ptr", fmt.Sprintf("%p", cn)).Debug("Subscription goroutine exiting")
		}
	}()

	if cn.logger != nil {
		cn.logger.WithField("connection_ptr", fmt.Sprintf("%p", cn)).Debug("Subscription goroutine started")
	}

	interval := DefaultUpdateInterval
	if sub.Mode == device.StreamBatched || sub.Mode == device.StreamAggregated {
		if sub.MaxRate <= 0 {
			sub.MaxRate = DefaultBatchedInterval
		}
		interval = sub.MaxRate
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			switch sub.Mode {
			case device.StreamBatched:
				cn.deliverBatched(sub)
			case device.StreamAggregated:
				cn.deliverAggregated(sub)
			default:
				if !cn.deliverEach(sub) {
					return
				}
			}
		case <-sub.ctx.Done():
			return
		}
	}
}

// deliverBatched collects everything queued since the last tick into one
// record. Ticks with no data produce no callback. Values are recycled only
// after the callback returns because the record aliases their buffers.
func (cn *BLEConnection) deliverBatched(sub *Subscription) {
	record := newRecord(device.StreamBatched)
	var pending []*BLEValue

	for _, char := range sub.Targets {
		vals := takeQueued(char)
		if len(vals) == 0 {
			continue
		}
		uuid := char.UUID()
		for _, val := range vals {
			record.BatchValues[uuid] = append(record.BatchValues[uuid], val.Data)
			record.Flags |= val.Flags
			record.TsUs = val.TsUs
			record.Seq = val.Seq
		}
		pending = append(pending, vals...)
	}

	if len(record.BatchValues) > 0 {
		sub.Deliver(record)
	}
	for _, val := range pending {
		recycleValue(val)
	}
}

// deliverAggregated keeps one value per characteristic per tick. A
// characteristic with nothing queued marks the record FlagMissing. Values are
// recycled only after the callback returns because the record aliases their
// buffers.
func (cn *BLEConnection) deliverAggregated(sub *Subscription) {
	record := newRecord(device.StreamAggregated)
	var pending []*BLEValue

	for _, char := range sub.Targets {
		val := takeOne(char)
		if val == nil {
			record.Flags |= FlagMissing
			continue
		}
		record.Values[char.UUID()] = val.Data
		record.Flags |= val.Flags
		record.TsUs = val.TsUs
		record.Seq = val.Seq
		pending = append(pending, val)
	}

	// Skip empty ticks so consumers never see a record with no values.
	if len(record.Values) > 0 {
		sub.Deliver(record)
	}
	for _, val := range pending {
		recycleValue(val)
	}
}

// deliverEach drains every queued value into its own record, preserving
// per-characteristic order. Returns false when the subscription context
// ended mid-drain.
func (cn *BLEConnection) deliverEach(sub *Subscription) bool {
	for _, char := range sub.Targets {
		for {
			if sub.ctx.Err() != nil {
				return false
			}
			val := takeOne(char)
			if val == nil {
				break
			}

			record := newRecord(device.StreamEveryUpdate)
			record.Values[char.UUID()] = val.Data
			record.TsUs = val.TsUs
			record.Seq = val.Seq
			record.Flags |= val.Flags
			sub.Deliver(record)
			recycleValue(val)
		}
	}
	return true
}
