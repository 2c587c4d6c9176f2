package ptyio

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultSinkWriteCap is the default outbound ring capacity in bytes.
	// At ~0.3 KB per NDJSON line this holds a few hundred reports.
	DefaultSinkWriteCap = 64 * 1024

	// DefaultSinkReadCap is the default capacity for bytes read back from
	// the tty. The sink never consumes them; the ring just keeps an external
	// writer from blocking.
	DefaultSinkReadCap = 4096
)

// SinkOptions configures a telemetry sink.
type SinkOptions struct {
	WriteCap int           // outbound ring capacity in bytes (0 = DefaultSinkWriteCap)
	ReadCap  int           // tty-side ring capacity in bytes (0 = DefaultSinkReadCap)
	LinkPath string        // optional symlink to the slave device (e.g. /tmp/joycon)
	OnError  ErrorCallback // optional critical-failure callback
}

// Sink publishes updates as NDJSON lines on a pseudo-terminal slave.
// Downstream tools read the slave device (or the symlink) like a serial port.
// A slow or absent reader never blocks the sink; whole lines are dropped on
// overflow so the reader always sees intact JSON.
type Sink struct {
	pty      PTY
	linkPath string
	logger   *logrus.Logger
}

// NewSink creates the PTY pair and the optional symlink.
func NewSink(opts *SinkOptions, logger *logrus.Logger) (*Sink, error) {
	if opts == nil {
		opts = &SinkOptions{}
	}
	if logger == nil {
		logger = noopLogger
	}

	writeCap := opts.WriteCap
	if writeCap == 0 {
		writeCap = DefaultSinkWriteCap
	}
	readCap := opts.ReadCap
	if readCap == 0 {
		readCap = DefaultSinkReadCap
	}

	p, err := NewPtyWithOptions(&Options{
		ReadCap:  readCap,
		WriteCap: writeCap,
		Logger:   logger,
		OnError:  opts.OnError,
	})
	if err != nil {
		return nil, err
	}

	logger.WithField("tty", p.TTYName()).Info("Created PTY device")

	linkPath := ""
	if opts.LinkPath != "" {
		if err := os.Symlink(p.TTYName(), opts.LinkPath); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("failed to create tty symlink %s -> %s: %w", opts.LinkPath, p.TTYName(), err)
		}
		linkPath = opts.LinkPath
		logger.WithFields(logrus.Fields{
			"ttySymlink": linkPath,
			"target":     p.TTYName(),
		}).Info("Created PTY symlink")
	}

	return &Sink{
		pty:      p,
		linkPath: linkPath,
		logger:   logger,
	}, nil
}

// WriteUpdate serializes v as one JSON line and queues it for the tty.
// The line is dropped whole when the outbound ring is full.
func (s *Sink) WriteUpdate(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}

	line := make([]byte, 0, len(data)+1)
	line = append(line, data...)
	line = append(line, '\n')

	if _, err := s.pty.WriteFrame(line); err != nil {
		return fmt.Errorf("failed to queue update: %w", err)
	}
	return nil
}

// TTYName returns the slave device path.
func (s *Sink) TTYName() string {
	return s.pty.TTYName()
}

// LinkPath returns the symlink path, empty if none was created.
func (s *Sink) LinkPath() string {
	return s.linkPath
}

// Stats returns the underlying PTY counters.
func (s *Sink) Stats() Stats {
	return s.pty.Stats()
}

// Close removes the symlink and closes the PTY. The symlink goes first so no
// window exists where it dangles at a recycled pts number.
func (s *Sink) Close() error {
	if s.linkPath != "" {
		if err := os.Remove(s.linkPath); err != nil {
			s.logger.WithError(err).WithField("ttySymlink", s.linkPath).Warn("Failed to remove tty symlink")
		} else {
			s.logger.WithField("ttySymlink", s.linkPath).Debug("Removed tty symlink")
		}
		s.linkPath = ""
	}
	return s.pty.Close()
}
