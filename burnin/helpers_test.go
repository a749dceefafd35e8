package burnin

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"burnin/garbage"
)

// memDevice is an in-memory block device of fixed capacity. Writes past the
// end fail the way the kernel does: a short write, then ENOSPC.
type memDevice struct {
	mu   sync.Mutex
	data []byte
	pos  int
	// delay slows every write down.
	delay time.Duration
}

func newMemDevice(capacity int) *memDevice {
	return &memDevice{data: make([]byte, capacity)}
}

func (d *memDevice) Write(p []byte) (int, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pos == len(d.data) {
		return 0, &os.PathError{Op: "write", Path: "/dev/mem", Err: syscall.ENOSPC}
	}
	n := copy(d.data[d.pos:], p)
	d.pos += n
	if n < len(p) {
		return n, &os.PathError{Op: "write", Path: "/dev/mem", Err: syscall.ENOSPC}
	}
	return n, nil
}

func (d *memDevice) Close() error { return nil }

func (d *memDevice) OpenWrite(string) (io.WriteCloser, error) {
	d.mu.Lock()
	d.pos = 0
	d.mu.Unlock()
	return d, nil
}

func (d *memDevice) OpenRead(string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(d.data)), nil
}

// failingWriter accepts limit bytes and then fails with err.
type failingWriter struct {
	limit int
	err   error
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.limit <= 0 {
		return 0, w.err
	}
	if len(p) > w.limit {
		n := w.limit
		w.limit = 0
		return n, w.err
	}
	w.limit -= len(p)
	return len(p), nil
}

// chunkSource fills every chunk with its sequence number. After limit
// chunks it fails with err, or fills short when short is set. It remembers
// every distinct buffer it was handed.
type chunkSource struct {
	mu    sync.Mutex
	limit int
	err   error
	short bool
	fills int
	bufs  map[*byte]bool
}

func (c *chunkSource) Fill(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit > 0 && c.fills == c.limit {
		if c.short {
			return len(buf) / 2, nil
		}
		return 0, c.err
	}
	c.fills++
	if c.bufs == nil {
		c.bufs = make(map[*byte]bool)
	}
	c.bufs[&buf[0]] = true
	for i := range buf {
		buf[i] = byte(c.fills)
	}
	return len(buf), nil
}

func (c *chunkSource) counts() (fills, distinct int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fills, len(c.bufs)
}

// gatedWriter holds every write until release is closed.
type gatedWriter struct {
	io.Writer
	release chan struct{}
}

func (g *gatedWriter) Write(p []byte) (int, error) {
	<-g.release
	return g.Writer.Write(p)
}

// failingReader returns data and then err.
type failingReader struct {
	r   io.Reader
	err error
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		return n, f.err
	}
	return n, err
}

// expectedStream returns the first n bytes of the stream as written with chunk size bs.
func expectedStream(t *testing.T, seed uint64, bs, n int) []byte {
	t.Helper()
	s, err := garbage.New(seed, bs)
	require.NoError(t, err)
	chunks := (n + bs - 1) / bs
	out := make([]byte, chunks*bs)
	_, err = s.Fill(out)
	require.NoError(t, err)
	return out[:n]
}

// imageFile creates a zeroed image of the given size.
func imageFile(t *testing.T, size int64) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "disk.img")
	f, err := os.Create(p)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	return p
}

// corruptFile XORs the byte at each offset.
func corruptFile(t *testing.T, path string, offsets ...int64) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	b := make([]byte, 1)
	for _, off := range offsets {
		_, err := f.ReadAt(b, off)
		require.NoError(t, err)
		b[0] ^= 0xFF
		_, err = f.WriteAt(b, off)
		require.NoError(t, err)
	}
}
