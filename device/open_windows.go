//go:build windows

package device

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/windows"
)

const (
	fsctlLockVolume      = 0x90018
	fsctlDismountVolume  = 0x90020
	fsctlUnlockVolume    = 0x9001c
	fileFlagWriteThrough = 0x80000000
)

// Opener opens devices for the burn-in phases. Drive-letter volumes are
// locked and dismounted for the duration of the write phase.
type Opener struct{}

// lockedVolume unlocks the volume before releasing its handle.
type lockedVolume struct {
	*os.File
}

func (v *lockedVolume) Close() error {
	_ = deviceIoControl(windows.Handle(v.Fd()), fsctlUnlockVolume)
	return v.File.Close()
}

// OpenWrite opens path with write-through for raw sequential writes.
func (Opener) OpenWrite(path string) (io.WriteCloser, error) {
	if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
		return os.OpenFile(path, os.O_WRONLY, 0)
	}
	if isDriveLetter(path) {
		vol, err := lockVolume(path)
		if err != nil {
			return nil, err
		}
		if vol != 0 {
			return &lockedVolume{File: os.NewFile(uintptr(vol), path)}, nil
		}
	}
	h, err := createExclusive(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open device %s: %w (ensure you are running as administrator and no programs have the drive open)", path, err)
	}
	return os.NewFile(uintptr(h), path), nil
}

// OpenRead opens path for sequential reads.
func (Opener) OpenRead(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func createExclusive(path string) (windows.Handle, error) {
	return windows.CreateFile(
		windows.StringToUTF16Ptr(path),
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0, // exclusive access for raw disk writes
		nil,
		windows.OPEN_EXISTING,
		fileFlagWriteThrough,
		0,
	)
}

func deviceIoControl(h windows.Handle, code uint32) error {
	var bytesReturned uint32
	return windows.DeviceIoControl(h, code, nil, 0, nil, 0, &bytesReturned, nil)
}

// lockVolume opens, locks and dismounts a \\.\X: volume. It returns 0 when
// the volume does not support locking.
func lockVolume(devicePath string) (windows.Handle, error) {
	volumePath := strings.ToUpper(devicePath)
	vol, err := createExclusive(volumePath)
	if err != nil {
		return 0, fmt.Errorf("cannot open volume %s (may need admin privileges): %w", volumePath, err)
	}
	if err := deviceIoControl(vol, fsctlLockVolume); err != nil {
		windows.CloseHandle(vol)
		if err == windows.ERROR_NOT_SUPPORTED {
			return 0, nil
		}
		return 0, fmt.Errorf("cannot lock volume %s (volume may be in use - close all programs accessing it): %w", volumePath, err)
	}
	if err := deviceIoControl(vol, fsctlDismountVolume); err != nil && err != windows.ERROR_NOT_SUPPORTED {
		_ = deviceIoControl(vol, fsctlUnlockVolume)
		windows.CloseHandle(vol)
		return 0, fmt.Errorf("cannot dismount volume %s: %w", volumePath, err)
	}
	return vol, nil
}
