package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSysfs lays out /sys/class/block the way the kernel does, with the
// class entries as symlinks into /sys/devices.
func fakeSysfs(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	blockDir := filepath.Join(root, "devices", "pci0000:00", "ata1", "block")
	files := map[string]string{
		"sda/queue/rotational":          "1\n",
		"sda/queue/physical_block_size": "4096\n",
		"sda/device/model":              "WDC WD40EFRX   \n",
		"sda/sda1/partition":            "1\n",
		"nvme0n1/queue/rotational":      "0\n",
	}
	for name, content := range files {
		p := filepath.Join(blockDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	class := filepath.Join(root, "class", "block")
	require.NoError(t, os.MkdirAll(class, 0o755))
	links := map[string]string{
		"sda":     filepath.Join(blockDir, "sda"),
		"sda1":    filepath.Join(blockDir, "sda", "sda1"),
		"nvme0n1": filepath.Join(blockDir, "nvme0n1"),
	}
	for name, target := range links {
		require.NoError(t, os.Symlink(target, filepath.Join(class, name)))
	}
	return root
}

func TestReadSysfs(t *testing.T) {
	root := fakeSysfs(t)

	si, ok := readSysfs(root, "sda")
	require.True(t, ok)
	assert.False(t, si.partition)
	assert.Equal(t, "sda", si.whole)
	assert.True(t, si.knownRotation)
	assert.True(t, si.rotational)
	assert.Equal(t, uint64(4096), si.physicalBlockSize)
	assert.Equal(t, "WDC WD40EFRX", si.model)

	si, ok = readSysfs(root, "sda1")
	require.True(t, ok)
	assert.True(t, si.partition)
	assert.Equal(t, "sda", si.whole)
	assert.True(t, si.rotational, "partitions inherit the parent's queue")

	si, ok = readSysfs(root, "nvme0n1")
	require.True(t, ok)
	assert.True(t, si.knownRotation)
	assert.False(t, si.rotational)
	assert.Zero(t, si.physicalBlockSize)

	_, ok = readSysfs(root, "sdz")
	assert.False(t, ok)
}

func TestTrimPartitionSuffix(t *testing.T) {
	assert.Equal(t, "sda", trimPartitionSuffix("sda1"))
	assert.Equal(t, "sdb", trimPartitionSuffix("sdb12"))
	assert.Equal(t, "nvme0n1", trimPartitionSuffix("nvme0n1p3"))
	assert.Equal(t, "mmcblk0", trimPartitionSuffix("mmcblk0p1"))
}

func TestLinuxNames(t *testing.T) {
	for _, name := range []string{"sda", "vdb", "hdc", "nvme0n1", "mmcblk0"} {
		assert.True(t, isWholeLinuxDevice(name), name)
		assert.False(t, isPartitionLinux(name), name)
	}
	for _, name := range []string{"sda1", "vdb2", "nvme0n1p1", "mmcblk0p2"} {
		assert.True(t, isPartitionLinux(name), name)
		assert.False(t, isWholeLinuxDevice(name), name)
	}
	for _, name := range []string{"loop0", "tty1", "nvme0", "sr0"} {
		assert.False(t, isWholeLinuxDevice(name), name)
		assert.False(t, isPartitionLinux(name), name)
	}
}
