//go:build unix

package disk

import (
	"os"

	"golang.org/x/sys/unix"
)

// syncFile durably persists a page write. Fdatasync skips the inode metadata
// flush fsync would also force, which is the same trade-off the teacher's
// FlushInstantly knob gestures at without naming the syscall.
func syncFile(f *os.File) error {
	if err := unix.Fdatasync(int(f.Fd())); err != nil {
		return f.Sync()
	}
	return nil
}
