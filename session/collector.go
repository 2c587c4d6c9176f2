package session

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

const (
	// Collector lifecycle states, reported by GetState.
	CollectorStateNotRunning uint32 = iota
	CollectorStateRunning
	CollectorStateStopping

	// MaxBufferSize caps the ring size to catch accidental misconfiguration.
	MaxBufferSize uint32 = 1024 * 1024

	collectorStartTimeout = 1 * time.Second
	collectorStopTimeout  = 5 * time.Second
)

// CollectorMetrics is a point-in-time snapshot of the collector's traffic
// counters.
type CollectorMetrics struct {
	ReportsProcessed   int64 // updates buffered since the last reset
	ErrorsOccurred     int64 // enqueue failures
	ReportsOverwritten int64 // updates evicted by newer ones
}

// Collector drains a session's update channel into a ring buffer for later
// consumption through a ConsumerFunc. When the ring wraps, the newest update
// evicts the oldest, so a slow consumer always reads recent controller state
// instead of an ever-older backlog.
//
// All methods are safe for concurrent use.
type Collector struct {
	updates <-chan Update
	buffer  mpmc.RichOverlappedRingBuffer[Update]
	onError func(error)

	stop  chan struct{}
	done  chan struct{}
	state atomic.Uint32

	processed   atomic.Int64
	errors      atomic.Int64
	overwritten atomic.Int64
}

// NewCollector builds a collector reading from ch into a ring of bufferSize
// updates. onError fires on enqueue failures; leaving it nil turns any such
// failure into a panic.
func NewCollector(ch <-chan Update, bufferSize uint32, onError func(error)) (*Collector, error) {
	if ch == nil {
		return nil, fmt.Errorf("update channel cannot be nil")
	}
	if bufferSize == 0 {
		return nil, fmt.Errorf("buffer size must be > 0")
	}
	if bufferSize > MaxBufferSize {
		return nil, fmt.Errorf("buffer size %d exceeds maximum %d", bufferSize, MaxBufferSize)
	}
	if onError == nil {
		onError = func(err error) {
			panic(fmt.Sprintf("collector: %v", err))
		}
	}

	return &Collector{
		updates: ch,
		buffer:  mpmc.NewOverlappedRingBuffer[Update](bufferSize),
		onError: onError,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start launches the collecting goroutine and waits for it to come up.
// Fails when the collector is already running or still winding down.
func (c *Collector) Start() error {
	if !c.state.CompareAndSwap(CollectorStateNotRunning, CollectorStateRunning) {
		switch c.state.Load() {
		case CollectorStateRunning:
			return fmt.Errorf("collector is already running")
		case CollectorStateStopping:
			return fmt.Errorf("collector is still stopping")
		default:
			return fmt.Errorf("collector is in unknown state %d", c.state.Load())
		}
	}

	// Fresh channels per run; the previous pair was closed on exit.
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	// Buffered so the goroutine never blocks on this signal even when the
	// wait below gives up first.
	started := make(chan struct{}, 1)
	go c.collect(started)

	select {
	case <-started:
		return nil
	case <-time.After(collectorStartTimeout):
		close(c.stop)
		<-c.done
		return fmt.Errorf("collector goroutine did not start within %v", collectorStartTimeout)
	}
}

func (c *Collector) collect(started chan<- struct{}) {
	started <- struct{}{}
	defer func() {
		close(c.done)
		c.state.Store(CollectorStateNotRunning)
	}()

	for {
		select {
		case <-c.stop:
			return
		case upd, ok := <-c.updates:
			if !ok {
				return
			}
			overwrites, err := c.buffer.EnqueueM(upd)
			if err != nil {
				c.errors.Add(1)
				c.onError(fmt.Errorf("buffer enqueue: %w", err))
				return
			}
			c.overwritten.Add(int64(overwrites))
			c.processed.Add(1)
		}
	}
}

// Stop shuts the collecting goroutine down and waits for it to exit. A
// collector that never ran, or has already stopped, returns nil right away.
func (c *Collector) Stop() error {
	if c.state.CompareAndSwap(CollectorStateRunning, CollectorStateStopping) {
		close(c.stop)
	} else if c.state.Load() == CollectorStateNotRunning {
		return nil
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(collectorStopTimeout):
		// Keep waiting; the slow exit still has to finish before the
		// channels can be reused.
		<-c.done
		return fmt.Errorf("collector took longer than %v to stop", collectorStopTimeout)
	}
}

// GetState reports the current lifecycle state.
func (c *Collector) GetState() uint32 {
	return c.state.Load()
}

// GetMetrics snapshots the traffic counters.
func (c *Collector) GetMetrics() CollectorMetrics {
	return CollectorMetrics{
		ReportsProcessed:   c.processed.Load(),
		ErrorsOccurred:     c.errors.Load(),
		ReportsOverwritten: c.overwritten.Load(),
	}
}

// ResetMetrics zeroes all counters.
func (c *Collector) ResetMetrics() {
	c.processed.Store(0)
	c.errors.Store(0)
	c.overwritten.Store(0)
}

// ConsumerFunc consumes buffered updates one at a time.
//
// While updates remain, each is passed in turn; returning a non-zero T ends
// the drain early with that value as the result. Once the buffer is empty
// the function is called a final time with nil, and whatever it returns
// becomes the result. State carried across calls lives in the closure.
//
// JSONLinesConsumerFunc is a ready-made implementation.
type ConsumerFunc[T any] func(update *Update) (T, error)

// JSONLinesConsumerFunc returns a consumer that writes one JSON object per
// update to w and reports the number of lines written.
func JSONLinesConsumerFunc(w io.Writer) ConsumerFunc[int] {
	enc := json.NewEncoder(w)
	var written int
	return func(update *Update) (int, error) {
		if update == nil {
			return written, nil
		}
		if err := enc.Encode(update); err != nil {
			return 0, fmt.Errorf("failed to encode update: %w", err)
		}
		written++
		return 0, nil
	}
}

// ConsumeUpdates drains the buffer through consumer. The consumer decides
// when to stop and what to return; see ConsumerFunc for the protocol.
func ConsumeUpdates[T any](c *Collector, consumer ConsumerFunc[T]) (T, error) {
	for !c.buffer.IsEmpty() {
		upd, err := c.buffer.Dequeue()
		if err != nil {
			var zero T
			return zero, fmt.Errorf("buffer dequeue: %w", err)
		}

		result, err := consumer(&upd)
		if err != nil {
			return result, err
		}
		if !isZero(result) {
			return result, nil
		}
	}
	return consumer(nil)
}

func isZero[T any](v T) bool {
	var zero T
	return reflect.DeepEqual(v, zero)
}

// ConsumeJSONLines drains the buffer to w as newline-delimited JSON and
// returns the number of lines written.
func (c *Collector) ConsumeJSONLines(w io.Writer) (int, error) {
	return ConsumeUpdates(c, JSONLinesConsumerFunc(w))
}
