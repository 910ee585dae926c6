package serialsource

import "golang.org/x/sys/unix"

// purgeInput discards data received by the tty but not yet read, and data
// written but not yet transmitted.
func purgeInput(fd uintptr) error {
	return unix.IoctlSetInt(int(fd), unix.TCFLSH, unix.TCIOFLUSH)
}
