package fountainstore

// lock.go implements an advisory exclusive lock on a store directory,
// held for the lifetime of an open Store so two processes never open the
// same directory concurrently.

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func acquireLock(dir string) (*os.File, error) {
	path := dir + "/LOCK"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("fountainstore: store directory %q is locked by another process: %w", dir, err)
	}
	return f, nil
}

func releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return f.Close()
}
