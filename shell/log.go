//go:build linux

package shell

import (
	"log/slog"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

// SetLogger replaces the logger used for suppressed errors and shutdown
// progress. A nil logger restores slog.Default.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
}

func log() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}
