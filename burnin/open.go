package burnin

import (
	"io"
	"os"
)

// Opener opens a device for one phase. The handle belongs to that phase
// alone and is closed when it ends.
type Opener interface {
	OpenWrite(path string) (io.WriteCloser, error)
	OpenRead(path string) (io.ReadCloser, error)
}

// FileOpener opens devices and image files with os.OpenFile.
var FileOpener Opener = fileOpener{}

type fileOpener struct{}

func (fileOpener) OpenWrite(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY, 0)
}

func (fileOpener) OpenRead(path string) (io.ReadCloser, error) {
	return os.Open(path)
}
