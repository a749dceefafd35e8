//go:build windows

package device

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	ioctlStorageGetDeviceNumber = 0x2D1080
	ioctlDiskGetLengthInfo      = 0x7405C
)

type storageDeviceNumber struct {
	DeviceType      uint32
	DeviceNumber    uint32
	PartitionNumber uint32
}

// DefaultProber on Windows only knows sizes and which physical drive a
// volume lives on. Devices come back unclassified, so the sanity checks
// have to be skipped explicitly.
func DefaultProber() Prober { return windowsProber{} }

type windowsProber struct{}

func (windowsProber) Probe(path string) (Info, error) {
	info := Info{Path: path, Resolved: path, Whole: path}
	if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
		info.Media = MediaImage
		info.Capacity = uint64(fi.Size())
		info.Classified = true
		return info, nil
	}
	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(path),
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		0,
		0,
	)
	if err != nil {
		return info, fmt.Errorf("open %s: %w", path, err)
	}
	defer windows.CloseHandle(h)

	info.Capacity = diskLength(h, path)
	if isDriveLetter(path) {
		var num storageDeviceNumber
		var n uint32
		if err := windows.DeviceIoControl(h, ioctlStorageGetDeviceNumber, nil, 0,
			(*byte)(unsafe.Pointer(&num)), uint32(unsafe.Sizeof(num)), &n, nil); err == nil {
			info.Whole = fmt.Sprintf(`\\.\PhysicalDrive%d`, num.DeviceNumber)
			info.Partition = true
		}
	}
	info.Serial = serialNumber(info.Whole)
	return info, nil
}

func diskLength(h windows.Handle, path string) uint64 {
	var length int64
	var n uint32
	if err := windows.DeviceIoControl(h, ioctlDiskGetLengthInfo, nil, 0,
		(*byte)(unsafe.Pointer(&length)), uint32(unsafe.Sizeof(length)), &n, nil); err == nil && length > 0 {
		return uint64(length)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	if size, err := f.Seek(0, io.SeekEnd); err == nil && size > 0 {
		return uint64(size)
	}
	return 0
}

// isDriveLetter matches \\.\X: volume paths.
func isDriveLetter(p string) bool {
	if len(p) != 6 || !strings.HasPrefix(p, `\\.\`) {
		return false
	}
	c := p[4] &^ 0x20
	return c >= 'A' && c <= 'Z' && p[5] == ':'
}

// List probes \\.\PhysicalDriveN for a reasonable range of N.
func List() ([]Entry, error) {
	infos := []Entry{}
	for i := 0; i < 32; i++ {
		path := fmt.Sprintf(`\\.\PhysicalDrive%d`, i)
		f, err := os.Open(path)
		if err == nil {
			_ = f.Close()
			infos = append(infos, Entry{Path: path, Compatible: true})
		} else if i < 8 {
			infos = append(infos, Entry{Path: path, Compatible: false, Reason: "not accessible"})
		}
	}
	return infos, nil
}
