// Package async provides panic-safe background goroutine helpers.
package async

import (
	"runtime/debug"

	"github.com/ocmcp/supervisor/internal/supervisorlog"
)

// Go runs fn in a goroutine guarded by panic recovery. logger may be nil.
func Go(logger supervisorlog.Logger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover logs panic details without crashing the process.
func Recover(logger supervisorlog.Logger, name string) {
	if r := recover(); r != nil {
		if logger == nil {
			return
		}
		if name == "" {
			logger.Error("goroutine panic: %v, stack: %s", r, debug.Stack())
			return
		}
		logger.Error("goroutine panic [%s]: %v, stack: %s", name, r, debug.Stack())
	}
}
