package main

import (
	"context"
	"errors"

	"github.com/srg/joyc/discovery"
	"github.com/srg/joyc/internal/device"
	"github.com/srg/joyc/session"
)

// FormatUserError translates internal errors into messages suitable for
// terminal output. Errors without a specific translation pass through
// unchanged.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, session.ErrConnectionLost):
		return "connection to the controller was lost"
	case errors.Is(err, device.ErrNotConnected):
		return "controller is not connected"
	case errors.Is(err, discovery.ErrNotFound):
		return "no controller found (put it in pairing mode and keep it close)"
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	default:
		return err.Error()
	}
}
