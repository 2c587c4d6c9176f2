//go:build test

package main

import (
	"bytes"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/srg/joyc/internal/testutils"
)

// TestControllerAddress identifies the mock controller across command tests.
// The prefix is the Nintendo OUI.
const TestControllerAddress = "98:B6:E9:00:00:01"

// CommandTestSuite is the base suite for joyc command tests: a mock
// peripheral plus helpers to run cobra commands and capture what they print.
type CommandTestSuite struct {
	testutils.MockBLEPeripheralSuite
}

// ExecuteCommand runs cmd with args and returns everything written to the
// command's out and err streams.
func (s *CommandTestSuite) ExecuteCommand(cmd *cobra.Command, args ...string) (string, error) {
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// CaptureStdout runs fn with os.Stdout redirected into a pipe and returns
// what fn printed. Needed because the table renderers write to os.Stdout
// directly instead of the cobra streams. The reader runs concurrently so
// output larger than the pipe buffer cannot stall fn.
func (s *CommandTestSuite) CaptureStdout(fn func()) string {
	orig := os.Stdout
	r, w, err := os.Pipe()
	s.Require().NoError(err, "pipe creation MUST succeed")

	captured := make(chan string)
	go func() {
		data, _ := io.ReadAll(r)
		captured <- string(data)
	}()

	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	w.Close()
	return <-captured
}
