//go:build !windows

package iosink

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive, advisory lock on file for the lifetime
// of the descriptor. The teacher's own writer only ships a Windows
// stub for this; flock is the natural unix counterpart to the
// LockFileEx call that stub leaves as a TODO.
func lockFile(file *os.File) error {
	return unix.Flock(int(file.Fd()), unix.LOCK_EX)
}

// unlockFile releases a lock taken by lockFile.
func unlockFile(file *os.File) error {
	return unix.Flock(int(file.Fd()), unix.LOCK_UN)
}
