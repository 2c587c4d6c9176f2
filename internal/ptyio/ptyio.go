// Package ptyio exposes a telemetry stream on a pseudo-terminal. A ring-buffered
// master wrapper keeps writes non-blocking; downstream tools open the slave
// device (or a symlink to it) and read NDJSON lines.
package ptyio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/joyc/internal/groutine"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ErrorCallback is invoked from a background goroutine when a read or write
// loop hits a critical error and exits. The PTY is degraded afterwards and
// should be closed. Implementations must be thread-safe.
type ErrorCallback func(err error)

// Options configures PTY creation. Zero values use defaults.
type Options struct {
	ReadCap       int            // ring capacity for bytes read back from the tty
	WriteCap      int            // ring capacity for queued outbound bytes
	Logger        *logrus.Logger // nil = no-op logger
	OnError       ErrorCallback  // optional critical-failure callback
	PollTimeoutMs int            // poll timeout in milliseconds (0 = DefaultPollTimeoutMs)
}

// PTY is a non-blocking pseudo-terminal master. Write queues bytes for async
// transmission and may truncate on overflow; WriteFrame queues all-or-nothing
// so line-oriented payloads stay intact.
type PTY interface {
	io.ReadWriteCloser
	WriteFrame(data []byte) (int, error)
	Stats() Stats
	TTYName() string // slave device path, e.g. "/dev/pts/5"
}

// Stats provides runtime counters useful for monitoring backpressure.
type Stats struct {
	ReadQueueLen  int32
	ReadQueueCap  int32
	WriteQueueLen int32 // approximate
	WriteQueueCap int32

	ReadBytesTotal    uint64
	WriteBytesTotal   uint64
	DroppedReadCount  uint64 // bytes dropped on read buffer overflow
	DroppedWriteCount uint64 // bytes dropped on write buffer overflow
}

// DefaultPollTimeoutMs bounds how long the I/O loops wait before re-checking
// context cancellation. It is the worst-case shutdown latency per loop.
const DefaultPollTimeoutMs = 50

// noopLogger is shared across PTYs created without a logger.
var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}()

// ioVerdict tells an I/O loop what to do with an error from the master fd.
type ioVerdict int

const (
	ioRetry    ioVerdict = iota // transient, run the loop again
	ioWait                      // fd not ready, poll before retrying
	ioShutdown                  // fd closed or stream ended, exit quietly
	ioFatal                     // unexpected, report and exit
)

func classifyIO(err error) ioVerdict {
	switch {
	case errors.Is(err, syscall.EINTR):
		return ioRetry
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
		return ioWait
	case errors.Is(err, syscall.EBADF), errors.Is(err, os.ErrClosed), errors.Is(err, io.EOF):
		return ioShutdown
	default:
		return ioFatal
	}
}

// ringPut copies as much of data as fits. A full ring is not an error here;
// the shortfall is the caller's drop count.
func ringPut(ring *ringbuffer.RingBuffer, data []byte) (int, error) {
	n, err := ring.Write(data)
	if errors.Is(err, ringbuffer.ErrIsFull) {
		err = nil
	}
	return n, err
}

// ringTake moves up to len(buf) bytes out of the ring without blocking.
func ringTake(ring *ringbuffer.RingBuffer, buf []byte) (int, error) {
	n, err := ring.TryRead(buf)
	if errors.Is(err, ringbuffer.ErrIsEmpty) {
		err = nil
	}
	return n, err
}

// ringPTY implements PTY over a master/slave pair with a transmit and a
// receive goroutine. The rings bound memory: bytes that do not fit are
// dropped and counted, never blocked on.
type ringPTY struct {
	logger        *logrus.Logger
	master        *os.File // owned by the I/O loops
	slave         *os.File // kept open for the PTY lifetime
	slavePath     string
	onError       ErrorCallback
	errOnce       sync.Once // at most one critical error reaches the callback
	pollTimeoutMs int

	outRing *ringbuffer.RingBuffer // queued for transmission to the tty
	inRing  *ringbuffer.RingBuffer // read back from the tty

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	outPending chan struct{} // wakes the transmit loop after a queue

	closed atomic.Bool

	txBytes   atomic.Uint64
	rxBytes   atomic.Uint64
	txDropped atomic.Uint64
	rxDropped atomic.Uint64
}

// NewPty creates a master/slave pair, wraps the master, and returns the PTY.
// The slave path (TTYName) may be handed to another process. A nil logger
// disables logging.
func NewPty(readCap, writeCap int, logger *logrus.Logger) (PTY, error) {
	return NewPtyWithOptions(&Options{
		ReadCap:  readCap,
		WriteCap: writeCap,
		Logger:   logger,
	})
}

// NewPtyWithOptions creates a PTY with full configuration control.
func NewPtyWithOptions(opts *Options) (PTY, error) {
	if opts == nil {
		return nil, fmt.Errorf("options cannot be nil")
	}

	master, slave, err := openRawPair()
	if err != nil {
		return nil, err
	}

	pollTimeout := DefaultPollTimeoutMs
	if opts.PollTimeoutMs != 0 {
		pollTimeout = opts.PollTimeoutMs
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &ringPTY{
		logger:        logger,
		master:        master,
		slave:         slave,
		slavePath:     slave.Name(),
		outRing:       ringbuffer.New(opts.WriteCap),
		inRing:        ringbuffer.New(opts.ReadCap),
		ctx:           ctx,
		cancel:        cancel,
		onError:       opts.OnError,
		pollTimeoutMs: pollTimeout,
		outPending:    make(chan struct{}, 1), // buffered so the wakeup never blocks
	}

	p.wg.Add(2)

	groutine.Go(ctx, "pty-receive", func(ctx context.Context) {
		p.receiveLoop()
	})

	groutine.Go(ctx, "pty-transmit", func(ctx context.Context) {
		p.transmitLoop()
	})

	return p, nil
}

// openRawPair opens a master/slave pair, puts the slave in raw mode, and
// makes the master nonblocking.
func openRawPair() (master, slave *os.File, err error) {
	master, slave, err = pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open a PTY pair (check permissions and available PTY devices): %w", err)
	}
	defer func() {
		if err != nil {
			_ = master.Close()
			_ = slave.Close()
		}
	}()

	// Raw mode keeps the kernel line discipline from echoing or translating
	// the byte stream
	if _, err = term.MakeRaw(int(slave.Fd())); err != nil {
		return nil, nil, fmt.Errorf("failed to put PTY slave %s into raw mode: %w", slave.Name(), err)
	}

	if err = unix.SetNonblock(int(master.Fd()), true); err != nil {
		return nil, nil, fmt.Errorf("failed to make the PTY master of %s nonblocking: %w", slave.Name(), err)
	}

	return master, slave, nil
}

func (p *ringPTY) transmitLoop() {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("transmit loop panic: %v", r)
		}
		p.wg.Done()
	}()

	// Close() overwrites the fd fields, so the loops work from local copies
	master := p.master
	writable := []unix.PollFd{{Fd: int32(master.Fd()), Events: unix.POLLOUT}}
	chunk := make([]byte, 4096)
	idle := time.Duration(p.pollTimeoutMs) * time.Millisecond

	for p.ctx.Err() == nil {
		if p.outRing.IsEmpty() {
			select {
			case <-p.ctx.Done():
				return
			case <-p.outPending:
			case <-time.After(idle):
				continue
			}
		}

		n, err := ringTake(p.outRing, chunk)
		if err != nil {
			p.logger.Warnf("transmit loop: drain ring: %v", err)
			continue
		}
		if n == 0 {
			continue
		}

		if !p.flush(master, chunk[:n], writable) {
			return
		}
	}
}

// flush pushes one drained chunk to the master fd, polling through EAGAIN.
// It returns false when the loop should exit.
func (p *ringPTY) flush(master *os.File, chunk []byte, writable []unix.PollFd) bool {
	for len(chunk) > 0 {
		n, err := master.Write(chunk)
		if n > 0 {
			p.txBytes.Add(uint64(n))
			chunk = chunk[n:]
		}
		if err == nil {
			continue
		}

		switch classifyIO(err) {
		case ioRetry:
		case ioWait:
			if _, perr := unix.Poll(writable, p.pollTimeoutMs); perr != nil && !errors.Is(perr, syscall.EINTR) {
				p.logger.Warnf("transmit loop: poll: %v", perr)
			}
		case ioShutdown:
			p.logger.Debug("transmit loop exiting: master closed")
			return false
		default:
			p.logger.Warnf("transmit loop exiting: %v", err)
			p.reportError(fmt.Errorf("pty write: %w", err))
			return false
		}
	}
	return true
}

func (p *ringPTY) receiveLoop() {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("receive loop panic: %v", r)
		}
		p.wg.Done()
	}()

	master := p.master
	readable := []unix.PollFd{{Fd: int32(master.Fd()), Events: unix.POLLIN}}
	chunk := make([]byte, 4096)

	for p.ctx.Err() == nil {
		ready, err := unix.Poll(readable, p.pollTimeoutMs)
		if err != nil && !errors.Is(err, syscall.EINTR) {
			p.logger.Warnf("receive loop: poll: %v", err)
			continue
		}
		if ready == 0 {
			// Timeout; loop around and re-check the context
			continue
		}

		n, err := master.Read(chunk)
		if n > 0 {
			p.stash(chunk[:n])
		}
		if err == nil {
			continue
		}

		switch classifyIO(err) {
		case ioRetry, ioWait:
			// Nothing readable after all; poll again
		case ioShutdown:
			p.logger.Debug("receive loop exiting: master closed")
			return
		default:
			p.logger.Warnf("receive loop exiting: %v", err)
			p.reportError(fmt.Errorf("pty read: %w", err))
			return
		}
	}
}

// stash copies bytes read back from the tty into the inbound ring, counting
// anything that does not fit.
func (p *ringPTY) stash(data []byte) {
	kept, err := ringPut(p.inRing, data)
	if err != nil {
		p.logger.Warnf("receive loop: ring: %v", err)
		return
	}
	if kept < len(data) {
		p.rxDropped.Add(uint64(len(data) - kept))
		p.logger.Warnf("Inbound ring full, dropped %d of %d bytes from tty", len(data)-kept, len(data))
	}
	p.rxBytes.Add(uint64(kept))
}

func (p *ringPTY) reportError(err error) {
	if p.onError == nil {
		return
	}
	p.errOnce.Do(func() {
		p.onError(err)
	})
}

// Write queues data for async transmission to the tty and returns immediately.
// On overflow the tail of data is dropped and n < len(data); the dropped bytes
// are counted in Stats().DroppedWriteCount. Returns os.ErrClosed after Close.
func (p *ringPTY) Write(data []byte) (int, error) {
	switch {
	case p.closed.Load():
		return 0, os.ErrClosed
	case len(data) == 0:
		return 0, nil
	}

	queued, err := ringPut(p.outRing, data)
	if err != nil {
		p.logger.Warnf("Write: ring: %v", err)
		return 0, err
	}

	if short := len(data) - queued; short > 0 {
		p.txDropped.Add(uint64(short))
		p.logger.Warnf("Outbound ring full, dropped %d of %d bytes", short, len(data))
	}

	if queued > 0 {
		p.kickTransmit()
	}

	return queued, nil
}

// WriteFrame queues data all-or-nothing. When the buffer cannot hold the whole
// frame the frame is dropped, counted in Stats().DroppedWriteCount, and (0, nil)
// is returned. Partial frames never reach the tty, so line framing survives
// overflow.
func (p *ringPTY) WriteFrame(data []byte) (int, error) {
	switch {
	case p.closed.Load():
		return 0, os.ErrClosed
	case len(data) == 0:
		return 0, nil
	}

	if p.outRing.Free() < len(data) {
		p.txDropped.Add(uint64(len(data)))
		p.logger.WithField("frameLen", len(data)).Debug("Outbound ring full, frame dropped")
		return 0, nil
	}

	return p.Write(data)
}

// Read reads up to len(b) buffered bytes that arrived from the tty and returns
// immediately. With no data available it returns (0, syscall.EAGAIN); callers
// should retry with poll/select/timer. Returns os.ErrClosed after Close.
func (p *ringPTY) Read(b []byte) (int, error) {
	switch {
	case p.closed.Load():
		return 0, os.ErrClosed
	case len(b) == 0:
		return 0, nil
	}

	n, err := ringTake(p.inRing, b)
	switch {
	case err != nil:
		p.logger.Warnf("Read: ring: %v", err)
		return 0, err
	case n == 0:
		return 0, syscall.EAGAIN
	}
	return n, nil
}

// Close stops the I/O loops and closes both FDs. Queued but untransmitted
// bytes are discarded. Idempotent.
func (p *ringPTY) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.cancel()

	// Closing the FDs kicks any in-flight I/O out with a closed-file error
	if err := p.master.Close(); err != nil {
		p.logger.Warnf("Close PTY master: %v", err)
	}
	if err := p.slave.Close(); err != nil {
		p.logger.Warnf("Close PTY slave: %v", err)
	}

	done := make(chan struct{})
	groutine.Go(context.Background(), "pty-close-wait", func(ctx context.Context) {
		p.wg.Wait()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		// The loops self-terminate within one poll timeout of the FD close;
		// warn and move on rather than blocking forever
		p.logger.Errorf("I/O loops still running 5s after Close, tty=%s", p.slavePath)
	}

	p.master = nil
	p.slave = nil

	return nil
}

func (p *ringPTY) kickTransmit() {
	select {
	case p.outPending <- struct{}{}:
	default:
		// wakeup already pending
	}
}

// Stats returns instantaneous counters for monitoring.
func (p *ringPTY) Stats() Stats {
	return Stats{
		WriteQueueLen:     int32(p.outRing.Length()),
		WriteQueueCap:     int32(p.outRing.Capacity()),
		ReadQueueLen:      int32(p.inRing.Length()),
		ReadQueueCap:      int32(p.inRing.Capacity()),
		DroppedWriteCount: p.txDropped.Load(),
		DroppedReadCount:  p.rxDropped.Load(),
		ReadBytesTotal:    p.rxBytes.Load(),
		WriteBytesTotal:   p.txBytes.Load(),
	}
}

// TTYName returns the filesystem path of the slave device.
func (p *ringPTY) TTYName() string {
	return p.slavePath
}
