// Package testutils provides a scriptable fake BLE adapter plus small test
// helpers shared across the package-level test suites.
package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// NewTestLogger returns a debug-level logger routed through t.Log so output
// shows up only for failing or verbose test runs.
func NewTestLogger(t *testing.T) *logrus.Logger {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetOutput(testWriter{t})
	return logger
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
