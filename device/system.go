package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
)

const systemQueryTimeout = 5 * time.Second

// serialNumber asks the OS for the serial number of a whole disk. It
// returns "" when the platform cannot tell.
func serialNumber(whole string) string {
	ctx, cancel := context.WithTimeout(context.Background(), systemQueryTimeout)
	defer cancel()
	s, err := disk.SerialNumberWithContext(ctx, whole)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// mountsOf lists the mount points of dev, and of every partition of whole
// when dev is a whole disk.
func mountsOf(dev, whole string) []string {
	ctx, cancel := context.WithTimeout(context.Background(), systemQueryTimeout)
	defer cancel()
	parts, err := disk.PartitionsWithContext(ctx, true)
	if err != nil {
		return nil
	}
	return matchMounts(parts, dev, whole)
}

func matchMounts(parts []disk.PartitionStat, dev, whole string) []string {
	var out []string
	for _, p := range parts {
		src := p.Device
		if r, err := filepath.EvalSymlinks(src); err == nil {
			src = r
		}
		if src == dev || (dev == whole && belongsTo(src, whole)) {
			out = append(out, p.Mountpoint)
		}
	}
	return out
}

// belongsTo reports whether part is a partition node of the disk node whole.
func belongsTo(part, whole string) bool {
	if filepath.Dir(part) != filepath.Dir(whole) {
		return false
	}
	p, w := filepath.Base(part), filepath.Base(whole)
	if !strings.HasPrefix(p, w) || p == w {
		return false
	}
	rest := p[len(w):]
	if w[len(w)-1] >= '0' && w[len(w)-1] <= '9' {
		// nvme0n1p1, mmcblk0p1, disk2s1: a separator keeps disk2 from claiming disk23.
		if rest[0] != 'p' && rest[0] != 's' {
			return false
		}
		rest = rest[1:]
	}
	return isDigits(rest)
}

// Volume is a mounted filesystem, for the device listing.
type Volume struct {
	Mountpoint string
	Fstype     string
	Device     string
	Size       uint64
}

// Mounted lists mounted physical filesystems.
func Mounted() ([]Volume, error) {
	ctx, cancel := context.WithTimeout(context.Background(), systemQueryTimeout)
	defer cancel()
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]Volume, 0, len(parts))
	for _, p := range parts {
		v := Volume{Mountpoint: p.Mountpoint, Fstype: p.Fstype, Device: p.Device}
		if u, err := disk.UsageWithContext(ctx, p.Mountpoint); err == nil {
			v.Size = u.Total
		}
		out = append(out, v)
	}
	return out, nil
}

// ResolveMount maps a mount point to the device mounted there. Paths that
// are not directories are returned unchanged.
func ResolveMount(p string) (string, error) {
	fi, err := os.Stat(p)
	if err != nil || !fi.IsDir() {
		return p, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), systemQueryTimeout)
	defer cancel()
	parts, err := disk.PartitionsWithContext(ctx, true)
	if err != nil {
		return "", err
	}
	if dev := deviceForMount(parts, p); dev != "" {
		return dev, nil
	}
	return "", fmt.Errorf("cannot resolve device for %s", p)
}

func deviceForMount(parts []disk.PartitionStat, target string) string {
	target = filepath.Clean(target)
	for _, p := range parts {
		if filepath.Clean(p.Mountpoint) == target {
			return p.Device
		}
	}
	return ""
}
