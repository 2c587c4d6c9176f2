package goble

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"

	"github.com/srg/joyc/internal/bledb"
	"github.com/srg/joyc/internal/device"
)

// Flags set on values and records when delivery was imperfect.
const (
	FlagDropped uint32 = 1 << iota
	FlagMissing
)

const (
	// DefaultBLEValueCapacity is the initial buffer capacity of pooled values.
	// Controller input reports are ~60 bytes, well under this.
	DefaultBLEValueCapacity = 256

	// MaxPooledBufferSize caps buffers returned to the pool. Anything larger
	// is replaced with a default-sized buffer so one oversized notification
	// cannot pin memory.
	MaxPooledBufferSize = 1024

	// DefaultReadTimeout bounds characteristic reads when no explicit timeout
	// applies, so an unresponsive peripheral cannot block forever.
	DefaultReadTimeout = 5 * time.Second
)

// BLEValue is one received notification. Values are pooled: Data is valid
// only until the value is released, so subscribers must copy it inside the
// callback if they keep it.
type BLEValue struct {
	Data  []byte
	TsUs  int64
	Seq   uint64
	Flags uint32
}

var valuePool = sync.Pool{
	New: func() any {
		return &BLEValue{Data: make([]byte, 0, DefaultBLEValueCapacity)}
	},
}

// seqCounter numbers every notification across all characteristics, so gaps
// in Seq expose drops anywhere in the pipeline.
var seqCounter atomic.Uint64

// newValue takes a pooled BLEValue, stamps it, and copies data into it.
func newValue(data []byte) *BLEValue {
	v := valuePool.Get().(*BLEValue)
	v.TsUs = time.Now().UnixMicro()
	v.Seq = seqCounter.Add(1)
	v.Flags = 0

	n := len(data)
	if cap(v.Data) < n {
		v.Data = make([]byte, n)
	}
	v.Data = v.Data[:n]
	copy(v.Data, data)
	return v
}

// recycleValue scrubs v and puts it back in the pool.
func recycleValue(v *BLEValue) {
	v.TsUs = 0
	v.Seq = 0
	v.Flags = 0

	if cap(v.Data) > MaxPooledBufferSize {
		v.Data = make([]byte, 0, DefaultBLEValueCapacity)
	} else {
		v.Data = v.Data[:0]
	}
	valuePool.Put(v)
}

// drainValues recycles every value still queued on ch without blocking.
func drainValues(ch chan *BLEValue) {
	for {
		var v *BLEValue
		var ok bool
		select {
		case v, ok = <-ch:
		default:
			return
		}
		if !ok || v == nil {
			return
		}
		recycleValue(v)
	}
}

// callWithTimeout runs op in a goroutine and waits at most timeout for its
// result. On timeout the goroutine keeps running; the buffered channel lets
// it finish without leaking.
func callWithTimeout[T any](timeout time.Duration, op func() T) (T, bool) {
	resCh := make(chan T, 1)
	go func() { resCh <- op() }()

	select {
	case res := <-resCh:
		return res, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// BLECharacteristic implements device.Characteristic over a go-ble
// characteristic. Notifications flow in through EnqueueValue and out through
// the buffered update queue and registered subscriber callbacks.
type BLECharacteristic struct {
	BLEChar *ble.Characteristic

	uuid        string
	knownName   string
	properties  device.Properties
	descriptors []device.Descriptor
	connection  *BLEConnection

	mu    sync.RWMutex
	value []byte
	subs  []func(*BLEValue)

	queue  chan *BLEValue
	closed atomic.Bool
}

func NewCharacteristic(raw *ble.Characteristic, buffer int, conn *BLEConnection, descriptors []device.Descriptor) *BLECharacteristic {
	rawUUID := raw.UUID.String()
	return &BLECharacteristic{
		BLEChar:     raw,
		uuid:        device.NormalizeUUID(rawUUID),
		knownName:   bledb.LookupCharacteristic(rawUUID),
		properties:  NewProperties(raw.Property),
		descriptors: descriptors,
		connection:  conn,
		queue:       make(chan *BLEValue, buffer),
	}
}

func (bc *BLECharacteristic) UUID() string {
	return bc.uuid
}

func (bc *BLECharacteristic) KnownName() string {
	return bc.knownName
}

func (bc *BLECharacteristic) GetProperties() device.Properties {
	return bc.properties
}

func (bc *BLECharacteristic) GetDescriptors() []device.Descriptor {
	return bc.descriptors
}

// GetValue returns the last value seen for this characteristic. The returned
// slice is shared; callers must not modify it.
func (bc *BLECharacteristic) GetValue() []byte {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.value
}

func (bc *BLECharacteristic) SetValue(value []byte) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.value = value
}

// readOutcome pairs the two results of an ATT read for callWithTimeout.
type readOutcome struct {
	data []byte
	err  error
}

// Read fetches the characteristic value from the peripheral, failing after
// timeout if the ATT exchange does not complete.
func (bc *BLECharacteristic) Read(timeout time.Duration) ([]byte, error) {
	if bc.properties == nil || bc.properties.Read() == nil {
		return nil, fmt.Errorf("characteristic %s does not support read operations: %w", bc.uuid, device.ErrUnsupported)
	}
	if bc.connection == nil || bc.BLEChar == nil {
		return nil, fmt.Errorf("%w: cannot read characteristic %s", device.ErrNotConnected, bc.uuid)
	}

	client, err := bc.connection.liveClient()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read characteristic %s", err, bc.uuid)
	}

	res, done := callWithTimeout(timeout, func() readOutcome {
		data, err := client.ReadCharacteristic(bc.BLEChar)
		return readOutcome{data: data, err: err}
	})
	if !done {
		return nil, fmt.Errorf("%w: reading characteristic %s after %v", device.ErrTimeout, bc.uuid, timeout)
	}
	if res.err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", bc.uuid, res.err)
	}
	return res.data, nil
}

// Write sends data to the characteristic.
//
// The requested write mode is reconciled with the available properties: a
// with-response write falls back to write-without-response when only that is
// supported, and the other way around, so a write succeeds whenever either
// write property is present.
//
// Payloads larger than DefaultBLEWriteChunkSize are split into chunks with
// DefaultBLEWriteDelay between them. Writes are serialized per connection.
func (bc *BLECharacteristic) Write(data []byte, withResponse bool, timeout time.Duration) error {
	if bc.properties == nil || (bc.properties.Write() == nil && bc.properties.WriteWithoutResponse() == nil) {
		return fmt.Errorf("characteristic %s does not support write operations: %w", bc.uuid, device.ErrUnsupported)
	}
	if bc.connection == nil || bc.BLEChar == nil {
		return fmt.Errorf("%w: cannot write characteristic %s", device.ErrNotConnected, bc.uuid)
	}

	// Pick the ATT write mode the peripheral actually supports, preferring
	// what the caller asked for.
	noRsp := !withResponse
	switch {
	case withResponse && bc.properties.Write() == nil:
		noRsp = true
	case !withResponse && bc.properties.WriteWithoutResponse() == nil:
		noRsp = false
	}

	client, err := bc.connection.liveClient()
	if err != nil {
		return fmt.Errorf("%w: cannot write characteristic %s", err, bc.uuid)
	}

	conn := bc.connection
	res, done := callWithTimeout(timeout, func() error {
		conn.writeMutex.Lock()
		defer conn.writeMutex.Unlock()

		remaining := data
		for len(remaining) > 0 {
			n := len(remaining)
			if n > DefaultBLEWriteChunkSize {
				n = DefaultBLEWriteChunkSize
			}
			if err := client.WriteCharacteristic(bc.BLEChar, remaining[:n], noRsp); err != nil {
				return fmt.Errorf("failed to write characteristic %s: %w", bc.uuid, err)
			}
			remaining = remaining[n:]
			if len(remaining) > 0 {
				time.Sleep(DefaultBLEWriteDelay)
			}
		}
		return nil
	})
	if !done {
		return fmt.Errorf("%w: writing characteristic %s after %v", device.ErrTimeout, bc.uuid, timeout)
	}
	return res
}

// EnqueueValue queues a notification for stream consumers. When the buffer is
// full the oldest value is dropped, flagged, and recycled so the newest data
// always gets through.
func (bc *BLECharacteristic) EnqueueValue(v *BLEValue) {
	// BLE callbacks can fire after shutdown; never send on a closed channel.
	if bc.closed.Load() {
		recycleValue(v)
		return
	}

	select {
	case bc.queue <- v:
		return
	default:
	}

	// Full. Sacrifice the oldest queued value to make room.
	select {
	case old, ok := <-bc.queue:
		if ok && old != nil {
			old.Flags |= FlagDropped
			recycleValue(old)
		}
	default:
		// A consumer drained the queue in the meantime.
	}

	if bc.closed.Load() {
		recycleValue(v)
		return
	}

	select {
	case bc.queue <- v:
	default:
		// Refilled by a faster producer; drop the newcomer instead.
		v.Flags |= FlagDropped
		recycleValue(v)
	}
}

// Subscribe registers fn to run for every notification on this
// characteristic. The BLEValue is pooled: fn must copy v.Data before
// returning if it keeps the bytes.
func (bc *BLECharacteristic) Subscribe(fn func(*BLEValue)) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.subs = append(bc.subs, fn)
}

func (bc *BLECharacteristic) notifySubscribers(v *BLEValue) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	for _, fn := range bc.subs {
		fn(v)
	}
}

// CloseUpdates closes the update queue exactly once.
func (bc *BLECharacteristic) CloseUpdates() {
	if bc.closed.CompareAndSwap(false, true) {
		close(bc.queue)
	}
}

// ResetUpdates recreates the update queue for a reconnect. The queue must
// have been closed first.
func (bc *BLECharacteristic) ResetUpdates(buffer int) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if !bc.closed.Load() {
		return fmt.Errorf("cannot reset the update queue: it is still open")
	}

	bc.queue = make(chan *BLEValue, buffer)
	bc.closed.Store(false)
	return nil
}
