package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// TestHelper bundles the testing.T with a debug-level logger so failures
// come with the full connect and subscribe trace.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}
