//go:build linux

package device

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// getDeviceSize returns the size of a file or block device in bytes.
func getDeviceSize(f *os.File) (int64, error) {
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno == 0 {
		return int64(size), nil
	}
	// Not a block device: fall back to seeking to the end.
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("cannot determine device size: %v", errno)
	}
	_, _ = f.Seek(0, io.SeekStart)
	return end, nil
}
