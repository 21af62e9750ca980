//go:build !windows

package state

import (
	"os"
	"syscall"
)

// lockExclusive blocks until it holds an exclusive flock on f.
// The returned release drops the lock.
func lockExclusive(f *os.File) (release func(), err error) {
	fd := int(f.Fd())
	if err := syscall.Flock(fd, syscall.LOCK_EX); err != nil {
		return nil, err
	}
	return func() { _ = syscall.Flock(fd, syscall.LOCK_UN) }, nil
}
