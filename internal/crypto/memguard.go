//go:build linux || darwin

package crypto

import "golang.org/x/sys/unix"

// LockMemory pins a key buffer so it cannot be swapped to disk.
// Best effort: callers ignore the error when the platform refuses.
func LockMemory(b []byte) error { return unix.Mlock(b) }

// UnlockMemory releases a buffer pinned with LockMemory.
func UnlockMemory(b []byte) error { return unix.Munlock(b) }
