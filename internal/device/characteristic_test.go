//go:build test

//go:generate go run github.com/srgg/testify/depend/cmd/dependgen

package device_test

import (
	"testing"
	"time"

	"github.com/srg/joyc/internal/device"
	"github.com/srg/joyc/joycon"
	"github.com/srgg/testify/depend"
)

// CharacteristicTestSuite exercises read and write paths against the mocked
// Joy-Con 2 profile.
type CharacteristicTestSuite struct {
	DeviceTestSuite
}

// getChar resolves a characteristic or fails the test on the spot.
func (suite *CharacteristicTestSuite) getChar(service, uuid string) device.Characteristic {
	suite.T().Helper()
	char, err := suite.connection.GetCharacteristic(service, uuid)
	suite.Require().NoError(err, "characteristic %s:%s MUST resolve", service, uuid)
	return char
}

func (suite *CharacteristicTestSuite) TestCharacteristicRead() {
	// GOAL: Verify reads return profile data and fail with the right sentinel otherwise
	//
	// TEST SCENARIO: Read normal, empty, write-only, disconnected and slow characteristics → data or the matching error

	suite.Run("battery level returns data", func() {
		data, err := suite.getChar("180f", "2a19").Read(5 * time.Second)

		suite.Assert().NoError(err)
		suite.Assert().Equal([]byte{85}, data, "read MUST return the mocked battery value")
	})

	suite.Run("empty value reads as empty, not nil", func() {
		data, err := suite.getChar("fff0", "ff03").Read(5 * time.Second)

		suite.Assert().NoError(err)
		suite.Assert().Empty(data)
		suite.Assert().NotNil(data, "an empty value MUST still be a non-nil slice")
	})

	suite.Run("repeated reads are stable", func() {
		char := suite.getChar("180f", "2a19")

		first, err1 := char.Read(5 * time.Second)
		second, err2 := char.Read(5 * time.Second)

		suite.Assert().NoError(err1)
		suite.Assert().NoError(err2)
		suite.Assert().Equal(first, second, "back-to-back reads MUST agree")
	})

	suite.Run("write-only characteristic rejects reads", func() {
		_, err := suite.getChar("fff0", joycon.CommandCharacteristicUUID).Read(5 * time.Second)

		suite.Assert().ErrorIs(err, device.ErrUnsupported)
		suite.Assert().Contains(err.Error(), device.NormalizeUUID(joycon.CommandCharacteristicUUID),
			"the error MUST name the characteristic")
		suite.Assert().Contains(err.Error(), "does not support read operations")
	})

	suite.Run("read after disconnect", func() {
		char := suite.getChar("180f", "2a19")
		suite.Require().NoError(suite.device.Disconnect())

		_, err := char.Read(5 * time.Second)

		suite.Assert().ErrorIs(err, device.ErrNotConnected)
		suite.Assert().Contains(err.Error(), "2a19", "the error MUST name the characteristic")
	})

	suite.Run("slow characteristic trips the deadline", func() {
		// ff01 is mocked with a one second response delay
		_, err := suite.getChar("fff0", "ff01").Read(500 * time.Millisecond)

		suite.Assert().ErrorIs(err, device.ErrTimeout)
		suite.Assert().Contains(err.Error(), "ff01")
		suite.Assert().Contains(err.Error(), "500ms", "the error MUST carry the deadline that was missed")
	})
}

func (suite *CharacteristicTestSuite) TestCharacteristicWrite() {
	// GOAL: Verify writes honor the characteristic's property set
	//
	// TEST SCENARIO: Write with and without response, oversized, to notify-only and disconnected targets → success or the matching error

	suite.Run("command write with response", func() {
		err := suite.getChar("fff0", joycon.CommandCharacteristicUUID).
			Write(joycon.ActivationCommand1, true, 5*time.Second)

		suite.Assert().NoError(err)
	})

	suite.Run("command write without response", func() {
		err := suite.getChar("fff0", joycon.CommandCharacteristicUUID).
			Write(joycon.ActivationCommand2, false, 5*time.Second)

		suite.Assert().NoError(err)
	})

	suite.Run("empty payload is allowed", func() {
		err := suite.getChar("fff0", joycon.CommandCharacteristicUUID).
			Write([]byte{}, true, 5*time.Second)

		suite.Assert().NoError(err)
	})

	suite.Run("payload larger than one ATT chunk", func() {
		payload := make([]byte, 64)
		for i := range payload {
			payload[i] = byte(i)
		}

		err := suite.getChar("fff0", joycon.CommandCharacteristicUUID).
			Write(payload, true, 10*time.Second)

		suite.Assert().NoError(err, "chunked delivery MUST succeed end to end")
	})

	suite.Run("several writes back to back", func() {
		char := suite.getChar("fff0", joycon.CommandCharacteristicUUID)

		for i, payload := range [][]byte{{0x01}, {0x02}, {0x03}} {
			err := char.Write(payload, true, 5*time.Second)
			suite.Assert().NoError(err, "write %d MUST succeed", i+1)
		}
	})

	suite.Run("notify-only characteristic rejects writes", func() {
		err := suite.getChar("fff0", joycon.InputReportCharacteristicUUID).
			Write([]byte{0x01}, true, 5*time.Second)

		suite.Assert().ErrorIs(err, device.ErrUnsupported)
		suite.Assert().Contains(err.Error(), device.NormalizeUUID(joycon.InputReportCharacteristicUUID),
			"the error MUST name the characteristic")
		suite.Assert().Contains(err.Error(), "does not support write operations")
	})

	suite.Run("falls back to write-without-response", func() {
		// ff05 only advertises write-without-response; asking for a response
		// still goes through.
		err := suite.getChar("fff0", "ff05").
			Write([]byte{0x01, 0x02, 0x03}, true, 5*time.Second)

		suite.Assert().NoError(err)
	})

	suite.Run("write after disconnect", func() {
		char := suite.getChar("fff0", joycon.CommandCharacteristicUUID)
		suite.Require().NoError(suite.device.Disconnect())

		err := char.Write(joycon.ActivationCommand1, true, 5*time.Second)

		suite.Assert().ErrorIs(err, device.ErrNotConnected)
		suite.Assert().Contains(err.Error(), device.NormalizeUUID(joycon.CommandCharacteristicUUID),
			"the error MUST name the characteristic")
	})

	suite.Run("slow characteristic trips the deadline", func() {
		// ff02 is mocked with a one second response delay
		err := suite.getChar("fff0", "ff02").Write([]byte{0x01}, true, 500*time.Millisecond)

		suite.Assert().ErrorIs(err, device.ErrTimeout)
		suite.Assert().Contains(err.Error(), "ff02")
		suite.Assert().Contains(err.Error(), "500ms", "the error MUST carry the deadline that was missed")
	})
}

func (suite *CharacteristicTestSuite) TestCharacteristicReadWrite() {
	// GOAL: Verify a read-write characteristic serves both operations
	//
	// TEST SCENARIO: Read the initial value, then overwrite it → both succeed

	char := suite.getChar("fff0", "ff04")

	initial, readErr := char.Read(5 * time.Second)
	writeErr := char.Write([]byte{0xFF}, true, 5*time.Second)

	suite.Assert().NoError(readErr)
	suite.Assert().NoError(writeErr)
	suite.Assert().Equal([]byte{0x00}, initial, "the initial value comes from the profile fixture")
}

func (suite *CharacteristicTestSuite) TestCharacteristicKnownName() {
	// GOAL: Verify KnownName() is filled in from bledb for SIG and vendor UUIDs alike
	//
	// TEST SCENARIO: Resolve standard, vendor and unlisted characteristics → registered names or empty string

	cases := []struct {
		label   string
		service string
		uuid    string
		want    string
	}{
		{"standard battery level", "180f", "2a19", "Battery Level"},
		{"vendor command", "fff0", joycon.CommandCharacteristicUUID, "Joy-Con 2 Command"},
		{"vendor input report", "fff0", joycon.InputReportCharacteristicUUID, "Joy-Con 2 Input Report"},
		{"unlisted UUID", "fff0", "ff01", ""},
	}

	for _, tc := range cases {
		suite.Run(tc.label, func() {
			char := suite.getChar(tc.service, tc.uuid)
			suite.Assert().Equal(tc.want, char.KnownName())
		})
	}
}

// @dependsOn TestCharacteristicWrite
func (suite *CharacteristicTestSuite) TestActivationCommandSequence() {
	// GOAL: Verify the activation handshake payloads deliver in protocol order
	//
	// TEST SCENARIO: Write both activation commands, reconnect, write them again → every write succeeds

	suite.Run("both commands in order", func() {
		char := suite.getChar("fff0", joycon.CommandCharacteristicUUID)

		for i, cmd := range joycon.ActivationCommands() {
			err := char.Write(cmd, true, 5*time.Second)
			suite.Assert().NoError(err, "activation command %d MUST write cleanly", i+1)
		}
	})

	suite.Run("sequence repeats after reconnect", func() {
		suite.Require().NoError(suite.device.Disconnect())
		suite.ensureConnected()

		char := suite.getChar("fff0", joycon.CommandCharacteristicUUID)

		for i, cmd := range joycon.ActivationCommands() {
			err := char.Write(cmd, true, 5*time.Second)
			suite.Assert().NoError(err, "activation command %d MUST write cleanly on the new link", i+1)
		}
	})
}

func TestCharacteristicTestSuite(t *testing.T) {
	depend.RunSuite(t, new(CharacteristicTestSuite))
}
