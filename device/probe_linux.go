//go:build linux

package device

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"
)

// DefaultProber classifies devices through sysfs and block ioctls.
func DefaultProber() Prober {
	return &linuxProber{sysRoot: "/sys", devRoot: "/dev"}
}

type linuxProber struct {
	sysRoot string
	devRoot string
}

func (p *linuxProber) Probe(path string) (Info, error) {
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
	if fi.Mode()&os.ModeDevice == 0 || fi.Mode()&os.ModeCharDevice != 0 {
		return info, fmt.Errorf("%w: %s", ErrNotBlockDevice, path)
	}

	size, err := getDeviceSize(f)
	if err != nil {
		return info, err
	}
	info.Capacity = uint64(size)
	if pbs, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKPBSZGET); err == nil && pbs > 0 {
		info.PhysicalBlockSize = uint64(pbs)
	}

	name := filepath.Base(resolved)
	if si, ok := readSysfs(p.sysRoot, name); ok {
		info.Classified = true
		info.Partition = si.partition
		info.Whole = filepath.Join(p.devRoot, si.whole)
		switch {
		case !si.knownRotation:
			info.Media = MediaUnknown
		case si.rotational:
			info.Media = MediaRotational
		default:
			info.Media = MediaSolidState
		}
		if si.physicalBlockSize > 0 {
			info.PhysicalBlockSize = si.physicalBlockSize
		}
		info.Model = si.model
		info.Serial = si.serial
	}
	if s := serialNumber(info.Whole); s != "" {
		info.Serial = s
	}
	info.Mounts = mountsOf(resolved, info.Whole)
	return info, nil
}

// List enumerates whole disks and partitions under /dev (read-only).
func List() ([]Entry, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}
	infos := []Entry{}
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join("/dev", name)
		switch {
		case isWholeLinuxDevice(name):
			infos = append(infos, Entry{Path: path, Compatible: true})
		case isPartitionLinux(name):
			infos = append(infos, Entry{Path: path, Compatible: false, Reason: "partition"})
		case len(name) > 4 && name[:4] == "loop":
			infos = append(infos, Entry{Path: path, Compatible: false, Reason: "loop device"})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}
