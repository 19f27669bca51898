package testutil

import (
	"io"

	"github.com/dtroode/refreshkeeper/internal/logger"
)

// MakeNoopLogger returns a debug-level logger that discards its output.
func MakeNoopLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, -4)
}
