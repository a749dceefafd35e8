package device

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// sysfsInfo is what /sys/class/block says about a block device.
type sysfsInfo struct {
	whole             string
	partition         bool
	rotational        bool
	knownRotation     bool
	physicalBlockSize uint64
	model             string
	serial            string
}

// readSysfs classifies the block device name (e.g. "sda1") from the sysfs
// tree rooted at root (normally "/sys").
func readSysfs(root, name string) (sysfsInfo, bool) {
	var si sysfsInfo
	dir := filepath.Join(root, "class", "block", name)
	if _, err := os.Stat(dir); err != nil {
		return si, false
	}
	si.whole = name
	if _, err := os.Stat(filepath.Join(dir, "partition")); err == nil {
		si.partition = true
		// /sys/class/block/sda1 -> ../../devices/.../block/sda/sda1
		if target, err := filepath.EvalSymlinks(dir); err == nil {
			si.whole = filepath.Base(filepath.Dir(target))
		} else {
			si.whole = trimPartitionSuffix(name)
		}
	}
	wholeDir := filepath.Join(root, "class", "block", si.whole)

	if s, ok := readSysfsString(filepath.Join(wholeDir, "queue", "rotational")); ok {
		si.knownRotation = true
		si.rotational = s == "1"
	}
	if s, ok := readSysfsString(filepath.Join(wholeDir, "queue", "physical_block_size")); ok {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			si.physicalBlockSize = n
		}
	}
	si.model, _ = readSysfsString(filepath.Join(wholeDir, "device", "model"))
	si.serial, _ = readSysfsString(filepath.Join(wholeDir, "device", "serial"))
	return si, true
}

func readSysfsString(p string) (string, bool) {
	b, err := os.ReadFile(p)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(b)), true
}

// trimPartitionSuffix maps sdXN -> sdX, nvmeXnYpZ -> nvmeXnY and mmcblkXpZ -> mmcblkX.
func trimPartitionSuffix(name string) string {
	if strings.HasPrefix(name, "nvme") || strings.HasPrefix(name, "mmcblk") {
		if idx := strings.LastIndexByte(name, 'p'); idx > 0 {
			return name[:idx]
		}
		return name
	}
	for len(name) > 0 && name[len(name)-1] >= '0' && name[len(name)-1] <= '9' {
		name = name[:len(name)-1]
	}
	return name
}

func isWholeLinuxDevice(name string) bool {
	// sdX, vdX, hdX
	if len(name) == 3 && (strings.HasPrefix(name, "sd") || strings.HasPrefix(name, "vd") || strings.HasPrefix(name, "hd")) && name[2] >= 'a' && name[2] <= 'z' {
		return true
	}
	// nvmeXnY
	if strings.HasPrefix(name, "nvme") && !strings.Contains(name[4:], "p") {
		parts := strings.Split(name[4:], "n")
		if len(parts) == 2 && isDigits(parts[0]) && isDigits(parts[1]) {
			return true
		}
	}
	// mmcblkX
	if strings.HasPrefix(name, "mmcblk") && isDigits(name[6:]) {
		return true
	}
	return false
}

func isPartitionLinux(name string) bool {
	if (strings.HasPrefix(name, "sd") || strings.HasPrefix(name, "vd") || strings.HasPrefix(name, "hd")) && len(name) >= 4 {
		return isDigits(name[3:])
	}
	if strings.HasPrefix(name, "nvme") || strings.HasPrefix(name, "mmcblk") {
		idx := strings.LastIndexByte(name, 'p')
		return idx > 0 && isDigits(name[idx+1:]) && isWholeLinuxDevice(name[:idx])
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
