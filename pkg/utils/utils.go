package utils

import (
	"TargetFetcher/internal/logging"
	"errors"
	"io"
	"os"
)

// CloseStreamSafe closes c and logs the error instead of returning it.
// Closing an already closed file is not reported.
func CloseStreamSafe(c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		logging.GlobalLogger.Warn("Failed to close stream: " + err.Error())
	}
}
