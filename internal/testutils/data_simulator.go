//go:build test

package testutils

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/joyc/internal/device"
	goble "github.com/srg/joyc/internal/device/go-ble"
)

// PeripheralDataSimulatorBuilder scripts characteristic notifications
// against a live mock connection, standing in for a controller pushing
// input reports.
//
// One value per characteristic:
//
//	suite.NewPeripheralDataSimulator().
//	    WithService("180D").
//	        WithCharacteristic("2A37", []byte{60}).
//	    Build().
//	    SimulateFor(conn, false)
//
// Queued values, delivered round-robin across characteristics:
//
//	suite.NewPeripheralDataSimulator().AllowMultiValue().
//	    WithService("180D").
//	        WithCharacteristic("2A37", []byte{60}).
//	        WithCharacteristic("2A37", []byte{61}).
//	    Build().
//	    SimulateFor(conn, false)
//
// Without AllowMultiValue a repeated characteristic keeps only its last
// value. Delivery walks queue position by queue position over every
// characteristic in the order they were added, so interleaved streams
// arrive interleaved.
type PeripheralDataSimulatorBuilder struct {
	suite      *MockBLEPeripheralSuite
	multiValue bool
	queues     *orderedmap.OrderedMap[charKey, [][]byte]
	connSource func() device.Connection
	logf       func(format string, args ...any)
}

// charKey addresses one characteristic's notification queue.
type charKey struct {
	service string
	char    string
}

// ServiceDataSimulatorBuilder adds characteristics under one service UUID.
// Build returns to the parent builder.
type ServiceDataSimulatorBuilder struct {
	parent  *PeripheralDataSimulatorBuilder
	service string
}

// NewPeripheralDataSimulator starts an empty notification script.
func (s *MockBLEPeripheralSuite) NewPeripheralDataSimulator() *PeripheralDataSimulatorBuilder {
	return &PeripheralDataSimulatorBuilder{
		suite:  s,
		queues: orderedmap.New[charKey, [][]byte](),
		logf:   s.T().Logf,
	}
}

// AllowMultiValue switches repeated WithCharacteristic calls from
// overwrite to append.
func (b *PeripheralDataSimulatorBuilder) AllowMultiValue() *PeripheralDataSimulatorBuilder {
	b.multiValue = true
	return b
}

// WithConnectionProvider sets where Simulate obtains its connection.
// SimulateFor ignores it.
func (b *PeripheralDataSimulatorBuilder) WithConnectionProvider(provider func() device.Connection) *PeripheralDataSimulatorBuilder {
	b.connSource = provider
	return b
}

// WithService scopes subsequent WithCharacteristic calls to a service.
func (b *PeripheralDataSimulatorBuilder) WithService(serviceUUID string) *ServiceDataSimulatorBuilder {
	return &ServiceDataSimulatorBuilder{parent: b, service: serviceUUID}
}

// WithCharacteristic queues data for a characteristic in this service.
func (s *ServiceDataSimulatorBuilder) WithCharacteristic(charUUID string, data []byte) *ServiceDataSimulatorBuilder {
	key := charKey{service: s.service, char: charUUID}
	queue, _ := s.parent.queues.Get(key)
	if s.parent.multiValue {
		queue = append(queue, data)
	} else {
		queue = [][]byte{data}
	}
	s.parent.queues.Set(key, queue)
	return s
}

// Build returns the parent builder for delivery.
func (s *ServiceDataSimulatorBuilder) Build() *PeripheralDataSimulatorBuilder {
	return s.parent
}

// Simulate delivers the script to the connection from the configured
// provider.
func (b *PeripheralDataSimulatorBuilder) Simulate(verbose bool) (*PeripheralDataSimulatorBuilder, error) {
	if b.connSource == nil {
		panic("Simulate needs WithConnectionProvider; use SimulateFor to target a connection directly")
	}
	return b.SimulateFor(b.connSource(), verbose)
}

// SimulateFor pushes every queued notification into conn.
func (b *PeripheralDataSimulatorBuilder) SimulateFor(conn device.Connection, verbose bool) (*PeripheralDataSimulatorBuilder, error) {
	b.suite.NotNil(conn, "simulation needs a live connection")

	bleConn, ok := conn.(*goble.BLEConnection)
	if !ok {
		panic(fmt.Sprintf("simulation needs a *goble.BLEConnection, got %T", conn))
	}

	rounds := 0
	for pair := b.queues.Oldest(); pair != nil; pair = pair.Next() {
		if len(pair.Value) > rounds {
			rounds = len(pair.Value)
		}
	}
	b.logf("simulating %d characteristic queue(s), longest %d", b.queues.Len(), rounds)

	sent := 0
	for idx := 0; idx < rounds; idx++ {
		for pair := b.queues.Oldest(); pair != nil; pair = pair.Next() {
			if idx >= len(pair.Value) {
				continue
			}
			key := pair.Key

			target, err := conn.GetCharacteristic(key.service, key.char)
			if !b.suite.NoError(err, "characteristic %s:%s must resolve", key.service, key.char) {
				continue
			}
			bleChar, ok := target.(*goble.BLECharacteristic)
			if !ok {
				panic(fmt.Sprintf("characteristic %s:%s is %T, not a mock-backed *goble.BLECharacteristic", key.service, key.char, target))
			}

			data := pair.Value[idx]
			sent++
			if verbose {
				b.logf("notification #%d %s:%s % X", sent, key.service, key.char, data)
			}
			bleConn.ProcessCharacteristicNotification(bleChar, data)
		}
	}

	b.logf("simulation delivered %d notification(s)", sent)
	return b, nil
}
