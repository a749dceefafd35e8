package burnin

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteToStopsWhenDeviceIsFull(t *testing.T) {
	const bs = 512
	capacity := 10*bs + 100
	dev := newMemDevice(capacity)
	opts := TestOptions{BufferSize: bs, Seed: 11}

	stats, err := WriteTo(context.Background(), dev, opts, nil, nil)
	require.NoError(t, err)
	assert.True(t, stats.DeviceFull)
	assert.Equal(t, uint64(capacity), stats.BytesWritten)
	assert.Equal(t, uint64(10), stats.Chunks)
	assert.Equal(t, expectedStream(t, 11, bs, capacity), dev.data)
}

func TestWriteToExactlyFullDevice(t *testing.T) {
	const bs = 256
	dev := newMemDevice(8 * bs)
	stats, err := WriteTo(context.Background(), dev, TestOptions{BufferSize: bs, Seed: 3}, nil, nil)
	require.NoError(t, err)
	assert.True(t, stats.DeviceFull)
	assert.Equal(t, uint64(8*bs), stats.BytesWritten)
}

func TestWriteToHonoursCapacityOnImageFiles(t *testing.T) {
	const bs = 4096
	capacity := int64(5*bs + 1000)
	path := imageFile(t, capacity)
	opts := TestOptions{BufferSize: bs, Seed: 77, DeviceCapacity: uint64(capacity), Sync: true}

	stats, err := Write(context.Background(), path, opts, nil, nil)
	require.NoError(t, err)
	assert.True(t, stats.DeviceFull)
	assert.Equal(t, uint64(capacity), stats.BytesWritten)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, int(capacity))
	assert.Equal(t, expectedStream(t, 77, bs, int(capacity)), data)
}

func TestWriteToZeroLengthWriteMeansFull(t *testing.T) {
	w := &failingWriter{limit: 3 * 64, err: nil}
	stats, err := WriteTo(context.Background(), w, TestOptions{BufferSize: 64, Seed: 1}, nil, nil)
	require.NoError(t, err)
	assert.True(t, stats.DeviceFull)
	assert.Equal(t, uint64(3*64), stats.BytesWritten)
}

func TestWriteToShortWriteErrorMeansFull(t *testing.T) {
	w := &failingWriter{limit: 100, err: io.ErrShortWrite}
	stats, err := WriteTo(context.Background(), w, TestOptions{BufferSize: 64, Seed: 1}, nil, nil)
	require.NoError(t, err)
	assert.True(t, stats.DeviceFull)
	assert.Equal(t, uint64(100), stats.BytesWritten)
}

func TestWriteToFatalError(t *testing.T) {
	w := &failingWriter{limit: 3 * 128, err: &os.PathError{Op: "write", Path: "/dev/sdz", Err: syscall.EIO}}
	stats, err := WriteTo(context.Background(), w, TestOptions{BufferSize: 128, Seed: 1}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EIO)
	assert.False(t, stats.DeviceFull)

	var se *SessionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, PhaseWrite, se.Phase)
	assert.Equal(t, uint64(3*128), se.Offset)
}

// writeSoon runs the write loop over src and fails the test if it does not
// return within d.
func writeSoon(t *testing.T, d time.Duration, w io.Writer, src filler, opts TestOptions) (WriteStats, error) {
	t.Helper()
	type result struct {
		stats WriteStats
		err   error
	}
	res := make(chan result, 1)
	go func() {
		stats, err := writeChunks(context.Background(), w, src, opts, nil, nil)
		res <- result{stats, err}
	}()
	select {
	case r := <-res:
		return r.stats, r.err
	case <-time.After(d):
		t.Fatal("write phase did not return")
		return WriteStats{}, nil
	}
}

func TestWriteGeneratorFailure(t *testing.T) {
	const (
		bs = 128
		k  = 5
	)
	boom := errors.New("entropy ran dry")
	tests := []struct {
		name string
		src  *chunkSource
		want string
	}{
		{"fill error", &chunkSource{limit: k, err: boom}, "entropy ran dry"},
		{"short fill", &chunkSource{limit: k, short: true}, "short fill: 64 of 128 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newMemDevice(64 * bs)
			stats, err := writeSoon(t, 5*time.Second, dev, tt.src, TestOptions{BufferSize: bs, QueueDepth: 2})

			var se *SessionError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, PhaseWrite, se.Phase)
			assert.Equal(t, uint64(k*bs), se.Offset)
			assert.ErrorContains(t, err, tt.want)
			if tt.src.err != nil {
				assert.ErrorIs(t, err, tt.src.err)
			}
			assert.False(t, stats.DeviceFull)
			assert.Equal(t, uint64(k*bs), stats.BytesWritten)
			assert.Equal(t, uint64(k), stats.Chunks)
			assert.Equal(t, byte(k), dev.data[k*bs-1], "chunks before the failure were written")
			assert.Zero(t, dev.data[k*bs])
		})
	}
}

func TestWriteStalledWriterBoundsBuffers(t *testing.T) {
	const (
		bs    = 64
		depth = 4
	)
	src := &chunkSource{}
	dev := &gatedWriter{Writer: newMemDevice(64 * bs), release: make(chan struct{})}
	res := make(chan WriteStats, 1)
	go func() {
		stats, err := writeChunks(context.Background(), dev, src, TestOptions{BufferSize: bs, QueueDepth: depth}, nil, nil)
		assert.NoError(t, err)
		res <- stats
	}()

	// The writer holds one chunk, the queue holds depth and the generator
	// waits with one more; nothing else may be generated.
	fills := func() int { n, _ := src.counts(); return n }
	require.Eventually(t, func() bool { return fills() == depth+2 }, 5*time.Second, time.Millisecond)
	require.Never(t, func() bool { return fills() > depth+2 }, 50*time.Millisecond, 5*time.Millisecond)
	close(dev.release)

	var stats WriteStats
	select {
	case stats = <-res:
	case <-time.After(5 * time.Second):
		t.Fatal("write phase did not return")
	}
	assert.True(t, stats.DeviceFull)
	assert.Equal(t, depth, stats.PeakQueued)
	_, distinct := src.counts()
	assert.LessOrEqual(t, distinct, depth+2)
	assert.Equal(t, distinct, stats.Buffers)
}

func TestGenerateRecordsWhyItStopped(t *testing.T) {
	q := newChunkQueue(2, 16)
	done := make(chan struct{})
	close(done)
	q.generate(&chunkSource{}, done, entryOrDiscard(nil))
	_, ok := <-q.ch
	assert.False(t, ok)
	assert.ErrorIs(t, q.err, errGeneratorStopped)
}

func TestWriteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WriteTo(ctx, io.Discard, TestOptions{BufferSize: 64, Seed: 1}, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteRejectsInvalidOptions(t *testing.T) {
	_, err := WriteTo(context.Background(), io.Discard, TestOptions{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestWriteOpenFailure(t *testing.T) {
	_, err := Write(context.Background(), "/nonexistent/device", TestOptions{BufferSize: 512}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	var se *SessionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "/nonexistent/device", se.Path)
	assert.Contains(t, err.Error(), "/nonexistent/device")
}

func TestLimitWriter(t *testing.T) {
	dev := newMemDevice(100)
	w := LimitWriter(dev, 10)
	n, err := w.Write(make([]byte, 6))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	n, err = w.Write(make([]byte, 6))
	assert.Equal(t, 4, n)
	assert.ErrorIs(t, err, syscall.ENOSPC)

	n, err = w.Write(make([]byte, 1))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrNoSpace)
}
