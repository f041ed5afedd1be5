//go:build !windows

package procutil

import (
	"os/exec"
	"syscall"
	"testing"
	"time"
)

func TestKillTerminatesProcessGroup(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	done := make(chan struct{})
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(done)
	}()

	k := New(nil)
	k.Kill(cmd.Process.Pid, done)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("process was not terminated")
	}
}

func TestKillNoopOnAlreadyDone(t *testing.T) {
	done := make(chan struct{})
	close(done)

	k := New(nil)
	// Must return immediately without attempting to signal the pid.
	finished := make(chan struct{})
	go func() {
		k.Kill(99999999, done)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("Kill did not return promptly for an already-done process")
	}
}

func TestKillNoopOnInvalidPID(t *testing.T) {
	k := New(nil)
	k.Kill(0, make(chan struct{}))
	k.Kill(-1, make(chan struct{}))
}
