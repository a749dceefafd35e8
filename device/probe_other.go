//go:build !linux && !darwin && !windows

package device

import (
	"fmt"
	"io"
	"os"
	"runtime"
)

// DefaultProber only measures sizes on this platform.
func DefaultProber() Prober { return sizeProber{} }

type sizeProber struct{}

func (sizeProber) Probe(path string) (Info, error) {
	info := Info{Path: path, Resolved: path, Whole: path}
	f, err := os.Open(path)
	if err != nil {
		return info, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if fi, err := f.Stat(); err == nil && fi.Mode().IsRegular() {
		info.Media = MediaImage
		info.Capacity = uint64(fi.Size())
		info.Classified = true
		return info, nil
	}
	if size, err := f.Seek(0, io.SeekEnd); err == nil {
		info.Capacity = uint64(size)
	}
	info.Mounts = mountsOf(path, path)
	return info, nil
}

// List is not supported here.
func List() ([]Entry, error) {
	return nil, fmt.Errorf("unsupported OS: %s", runtime.GOOS)
}
