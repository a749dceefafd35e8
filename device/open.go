//go:build !windows

package device

import (
	"io"
	"os"
)

// Opener opens devices for the burn-in phases.
type Opener struct{}

// OpenWrite opens path for raw sequential writes.
func (Opener) OpenWrite(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY, 0)
}

// OpenRead opens path for sequential reads.
func (Opener) OpenRead(path string) (io.ReadCloser, error) {
	return os.Open(path)
}
