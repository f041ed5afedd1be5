//go:build !windows

package procutil

import (
	"syscall"
	"time"

	"github.com/ocmcp/supervisor/internal/supervisorlog"
)

type posixKiller struct {
	logger supervisorlog.Logger
}

// New returns the platform Killer: POSIX SIGTERM, then SIGKILL after
// GracePeriod if the process group has not exited.
func New(logger supervisorlog.Logger) Killer {
	return &posixKiller{logger: logger}
}

func (k *posixKiller) Kill(pid int, done <-chan struct{}) {
	if pid <= 0 {
		return
	}
	if alreadyDone(done) {
		return
	}

	// Processes are started with Setpgid:true (see internal/worker), so
	// signalling -pid reaches the whole process group, not just the leader.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if k.logger != nil {
			k.logger.Debug("procutil: SIGTERM to pgid %d failed: %v", pid, err)
		}
	}

	select {
	case <-done:
		return
	case <-time.After(GracePeriod):
	}

	if alreadyDone(done) {
		return
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if k.logger != nil {
			k.logger.Debug("procutil: SIGKILL to pgid %d failed: %v", pid, err)
		}
	}
}

// GroupAttr returns the SysProcAttr that puts a spawned Worker CLI child
// into its own process group, so Kill's -pid signal reaches the whole tree.
func GroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func alreadyDone(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
