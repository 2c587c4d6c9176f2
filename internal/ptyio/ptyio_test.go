package ptyio

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openSlave opens the tty by path without making it the controlling terminal.
func openSlave(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.OpenFile(name, os.O_RDWR|syscall.O_NOCTTY, 0)
	require.NoError(t, err, "MUST be able to open the slave device %s", name)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

// readUntil reads from f until the collected bytes satisfy done, or fails the
// test after timeout.
func readUntil(t *testing.T, f *os.File, done func([]byte) bool, timeout time.Duration) []byte {
	t.Helper()

	resultCh := make(chan []byte, 1)
	errCh := make(chan error, 1)

	go func() {
		buf := make([]byte, 4096)
		var out []byte
		for !done(out) {
			n, err := f.Read(buf)
			if n > 0 {
				out = append(out, buf[:n]...)
			}
			if err != nil {
				errCh <- err
				return
			}
		}
		resultCh <- out
	}()

	select {
	case out := <-resultCh:
		return out
	case err := <-errCh:
		t.Fatalf("tty read failed: %v", err)
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for tty data")
	}
	return nil
}

// TestNewPty verifies creation, naming, stats, and idempotent close
func TestNewPty(t *testing.T) {
	p, err := NewPty(1024, 2048, nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(p.TTYName(), "/dev/"), "slave path MUST be a device node, got %s", p.TTYName())

	stats := p.Stats()
	assert.Equal(t, int32(1024), stats.ReadQueueCap)
	assert.Equal(t, int32(2048), stats.WriteQueueCap)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "Close MUST be idempotent")

	_, err = p.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)

	_, err = p.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrClosed)
}

// TestNewPtyWithOptionsNil verifies nil options are rejected
func TestNewPtyWithOptionsNil(t *testing.T) {
	_, err := NewPtyWithOptions(nil)
	assert.Error(t, err)
}

// TestWriteReachesSlave verifies queued bytes come out of the slave device
func TestWriteReachesSlave(t *testing.T) {
	p, err := NewPty(1024, 1024, nil)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	slave := openSlave(t, p.TTYName())

	payload := []byte("hello from the master\n")
	n, err := p.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n, "the whole payload MUST fit in an empty ring")

	out := readUntil(t, slave, func(b []byte) bool { return len(b) >= len(payload) }, 2*time.Second)
	assert.Equal(t, payload, out)

	stats := p.Stats()
	assert.GreaterOrEqual(t, stats.WriteBytesTotal, uint64(len(payload)))
	assert.Zero(t, stats.DroppedWriteCount)
}

// TestReadDrainsSlaveInput verifies bytes written into the tty surface via Read
func TestReadDrainsSlaveInput(t *testing.T) {
	p, err := NewPty(1024, 1024, nil)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	slave := openSlave(t, p.TTYName())

	payload := []byte("typed into the tty")
	_, err = slave.Write(payload)
	require.NoError(t, err)

	// Read is non-blocking, poll until the read loop has drained the bytes
	var out []byte
	buf := make([]byte, 256)
	deadline := time.Now().Add(2 * time.Second)
	for len(out) < len(payload) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out, got %d of %d bytes", len(out), len(payload))
		}
		n, err := p.Read(buf)
		if err != nil {
			require.ErrorIs(t, err, syscall.EAGAIN)
			time.Sleep(time.Millisecond)
			continue
		}
		out = append(out, buf[:n]...)
	}

	assert.Equal(t, payload, out)
	assert.GreaterOrEqual(t, p.Stats().ReadBytesTotal, uint64(len(payload)))
}

// TestWriteFrameDropsWholeFrames verifies oversized frames are dropped intact
func TestWriteFrameDropsWholeFrames(t *testing.T) {
	p, err := NewPtyWithOptions(&Options{ReadCap: 64, WriteCap: 16})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	// Larger than the ring can ever hold: dropped whole, never truncated
	big := []byte("this frame is larger than the ring")
	n, err := p.WriteFrame(big)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, uint64(len(big)), p.Stats().DroppedWriteCount)

	// A frame that fits goes through untouched
	small := []byte("ok\n")
	n, err = p.WriteFrame(small)
	require.NoError(t, err)
	assert.Equal(t, len(small), n)

	require.NoError(t, p.Close())
	_, err = p.WriteFrame(small)
	assert.ErrorIs(t, err, os.ErrClosed)
}

// TestSinkWritesNDJSON verifies updates arrive as parseable JSON lines
func TestSinkWritesNDJSON(t *testing.T) {
	sink, err := NewSink(nil, nil)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	slave := openSlave(t, sink.TTYName())

	for i := 1; i <= 3; i++ {
		require.NoError(t, sink.WriteUpdate(map[string]int{"seq": i}))
	}

	out := readUntil(t, slave, func(b []byte) bool {
		return strings.Count(string(b), "\n") >= 3
	}, 2*time.Second)

	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		var decoded map[string]int
		require.NoError(t, json.Unmarshal([]byte(line), &decoded), "line %d MUST be valid JSON: %q", i, line)
		assert.Equal(t, i+1, decoded["seq"])
	}
}

// TestSinkUnencodableUpdate verifies encode failures are reported, not queued
func TestSinkUnencodableUpdate(t *testing.T) {
	sink, err := NewSink(nil, nil)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	err = sink.WriteUpdate(map[string]interface{}{"bad": func() {}})
	assert.ErrorContains(t, err, "failed to encode update")
	assert.Zero(t, sink.Stats().WriteBytesTotal)
}

// TestSinkSymlink verifies the symlink lifecycle around the slave device
func TestSinkSymlink(t *testing.T) {
	link := filepath.Join(t.TempDir(), "joycon-tty")

	sink, err := NewSink(&SinkOptions{LinkPath: link}, nil)
	require.NoError(t, err)

	assert.Equal(t, link, sink.LinkPath())

	target, err := os.Readlink(link)
	require.NoError(t, err, "link MUST exist while the sink is open")
	assert.Equal(t, sink.TTYName(), target)

	require.NoError(t, sink.Close())

	_, err = os.Lstat(link)
	assert.True(t, errors.Is(err, os.ErrNotExist), "link MUST be removed on close")
}

// TestSinkSymlinkCollision verifies an occupied link path fails creation
func TestSinkSymlinkCollision(t *testing.T) {
	link := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(link, []byte("x"), 0o644))

	_, err := NewSink(&SinkOptions{LinkPath: link}, nil)
	assert.ErrorContains(t, err, "symlink")
}
