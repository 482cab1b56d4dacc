package util

import (
	"io"
	"log/slog"
)

// logNotifyResult logs the outcome of a notification attempt.
func logNotifyResult(err error, notifyType string) {
	if err != nil {
		slog.Error("notification failed", "type", notifyType, "error", err)
	} else {
		slog.Info("notification sent", "type", notifyType)
	}
}

// SafeCloseFunc returns a function that closes c and logs any close error.
// Intended for use with defer.
func SafeCloseFunc(c io.Closer, name string) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Warn("close failed", "what", name, "error", err)
		}
	}
}
