//go:build darwin

package device

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	dkiocGetBlockSize         = 0x40046418 // _IOR('d', 24, uint32)
	dkiocGetBlockCount        = 0x40086419 // _IOR('d', 25, uint64)
	dkiocGetPhysicalBlockSize = 0x4004644D // _IOR('d', 77, uint32)
)

// DefaultProber classifies devices by their diskN / diskNsM names. macOS
// does not tell us whether a disk spins, so Media stays unknown.
func DefaultProber() Prober { return darwinProber{} }

type darwinProber struct{}

func (darwinProber) Probe(path string) (Info, error) {
	info := Info{Path: path}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return info, fmt.Errorf("resolve %s: %w", path, err)
	}
	info.Resolved, info.Whole = resolved, resolved

	f, err := os.Open(resolved)
	if err != nil {
		return info, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return info, err
	}
	if fi.Mode().IsRegular() {
		info.Media = MediaImage
		info.Capacity = uint64(fi.Size())
		info.Classified = true
		return info, nil
	}
	if fi.Mode()&os.ModeDevice == 0 {
		return info, fmt.Errorf("%w: %s", ErrNotBlockDevice, path)
	}

	size, err := getDeviceSize(f)
	if err != nil {
		return info, err
	}
	info.Capacity = uint64(size)
	var pbs uint32
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), dkiocGetPhysicalBlockSize, uintptr(unsafe.Pointer(&pbs))); errno == 0 && pbs > 0 {
		info.PhysicalBlockSize = uint64(pbs)
	}

	name := filepath.Base(resolved)
	if whole, ok := darwinWhole(name); ok {
		info.Classified = true
		info.Partition = whole != name
		info.Whole = filepath.Join(filepath.Dir(resolved), whole)
	}
	info.Serial = serialNumber(info.Whole)
	info.Mounts = mountsOf(resolved, info.Whole)
	return info, nil
}

// darwinWhole maps (r)diskNsM to (r)diskN.
func darwinWhole(name string) (string, bool) {
	if !strings.HasPrefix(name, "disk") && !strings.HasPrefix(name, "rdisk") {
		return "", false
	}
	for i := 0; i+1 < len(name); i++ {
		if name[i] == 's' && name[i+1] >= '0' && name[i+1] <= '9' {
			return name[:i], true
		}
	}
	return name, true
}

// getDeviceSize returns the size of a file or block device in bytes.
func getDeviceSize(f *os.File) (int64, error) {
	var blockSize uint32
	var blockCount uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), dkiocGetBlockSize, uintptr(unsafe.Pointer(&blockSize)))
	if errno != 0 {
		size, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, fmt.Errorf("cannot determine device size: %v", errno)
		}
		_, _ = f.Seek(0, io.SeekStart)
		return size, nil
	}
	_, _, errno = unix.Syscall(unix.SYS_IOCTL, f.Fd(), dkiocGetBlockCount, uintptr(unsafe.Pointer(&blockCount)))
	if errno != 0 {
		return 0, fmt.Errorf("cannot get block count: %v", errno)
	}
	return int64(blockSize) * int64(blockCount), nil
}

// List enumerates disk nodes under /dev (read-only).
func List() ([]Entry, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}
	infos := []Entry{}
	for _, e := range entries {
		name := e.Name()
		whole, ok := darwinWhole(name)
		if !ok {
			continue
		}
		path := filepath.Join("/dev", name)
		if whole != name {
			infos = append(infos, Entry{Path: path, Compatible: false, Reason: "partition"})
		} else {
			infos = append(infos, Entry{Path: path, Compatible: true})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}
