//go:build unix

package process

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// killProcessGroup sends a signal to the process group led by pid.
//
// Daemons are spawned as group leaders (PGID == PID) and their children
// inherit the group, so one signal to -pid reaches the whole tree.
func killProcessGroup(pid int, sig unix.Signal) error {
	err := unix.Kill(-pid, sig)
	if err != nil {
		// ESRCH means no such process/group - acceptable if already dead
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("failed to signal process group %d: %w", pid, err)
	}
	return nil
}

// killProcess signals a single process.
func killProcess(pid int, sig unix.Signal) error {
	err := unix.Kill(pid, sig)
	if err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}
	return nil
}

// isProcessAlive reports whether pid exists. EPERM means it exists but
// belongs to another user.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
