package goble

import (
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/joyc/internal/bledb"
	"github.com/srg/joyc/internal/device"
)

// DefaultDescriptorReadTimeout bounds the best-effort descriptor read during
// discovery when ConnectOptions.DescriptorReadTimeout is left unset.
const DefaultDescriptorReadTimeout = 2 * time.Second

// BLEDescriptor wraps a discovered GATT descriptor together with the value
// captured at discovery time.
type BLEDescriptor struct {
	uuid      string
	knownName string
	value     []byte
	BLEDesc   *ble.Descriptor // kept for explicit re-reads
}

// newDescriptor wraps d and tries to capture its value. A zero timeout skips
// the read entirely; otherwise the read is best-effort and failures leave the
// value nil rather than failing discovery.
func newDescriptor(d *ble.Descriptor, client ble.Client, timeout time.Duration, logger *logrus.Logger) *BLEDescriptor {
	raw := d.UUID.String()
	desc := &BLEDescriptor{
		uuid:      device.NormalizeUUID(raw),
		knownName: bledb.LookupDescriptor(raw),
		BLEDesc:   d,
	}

	if timeout == 0 || client == nil {
		return desc
	}

	data, err := readDescriptorValue(d, client, timeout)
	if err != nil {
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"descriptor_uuid": desc.uuid,
				"error":           err,
			}).Debug("Failed to read descriptor value")
		}
		return desc
	}
	desc.value = data
	return desc
}

// readDescriptorValue returns the descriptor value, preferring the bytes the
// discovery exchange already delivered over an explicit ATT read.
func readDescriptorValue(d *ble.Descriptor, client ble.Client, timeout time.Duration) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		if len(d.Value) > 0 {
			ch <- result{data: d.Value}
			return
		}
		// go-ble leaves descriptor handles at 0 on Darwin, which makes an
		// explicit read impossible there.
		if d.Handle == 0 {
			ch <- result{err: fmt.Errorf("descriptor handle not available (macOS limitation)")}
			return
		}
		data, err := client.ReadDescriptor(d)
		ch <- result{data: data, err: err}
	}()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w: reading descriptor after %v", device.ErrTimeout, timeout)
	}
}

// UUID returns the normalized descriptor UUID.
func (d *BLEDescriptor) UUID() string {
	return d.uuid
}

// KnownName returns the SIG-assigned name, or "" for vendor descriptors.
func (d *BLEDescriptor) KnownName() string {
	return d.knownName
}

// Value returns the bytes captured at discovery, nil if the read was skipped
// or failed.
func (d *BLEDescriptor) Value() []byte {
	return d.value
}
