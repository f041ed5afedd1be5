//go:build windows

package procutil

import (
	"os/exec"
	"strconv"
	"syscall"

	"github.com/ocmcp/supervisor/internal/supervisorlog"
)

// GroupAttr returns nil on Windows: there is no POSIX process-group
// primitive here, so termination instead goes through taskkill's own
// process-tree walk (see Kill below).
func GroupAttr() *syscall.SysProcAttr {
	return nil
}

type windowsKiller struct {
	logger supervisorlog.Logger
}

// New returns the platform Killer. On Windows the POSIX SIGTERM→SIGKILL
// pattern does not apply; the system's process-tree termination utility is
// invoked synchronously instead.
func New(logger supervisorlog.Logger) Killer {
	return &windowsKiller{logger: logger}
}

func (k *windowsKiller) Kill(pid int, done <-chan struct{}) {
	if pid <= 0 {
		return
	}
	select {
	case <-done:
		return
	default:
	}

	cmd := exec.Command("taskkill", "/pid", strconv.Itoa(pid), "/T", "/F")
	if err := cmd.Run(); err != nil {
		// The child may have already exited; tolerate the error.
		if k.logger != nil {
			k.logger.Debug("procutil: taskkill pid %d failed: %v", pid, err)
		}
	}
}
