package burnin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"burnin/garbage"
)

// WriteStats summarizes a write phase.
type WriteStats struct {
	BytesWritten uint64
	Chunks       uint64
	// DeviceFull is set when the phase ended on the device running out of room.
	DeviceFull bool
	// PeakQueued is the most chunks ever waiting between generator and writer.
	PeakQueued int
	// Buffers is the number of chunk buffers the pipeline allocated.
	Buffers int
}

// Write opens path for writing and fills it with the garbage stream.
func Write(ctx context.Context, path string, opts TestOptions, progress Progress, log *logrus.Entry) (WriteStats, error) {
	return writePath(ctx, FileOpener, path, opts, progress, log)
}

func writePath(ctx context.Context, opener Opener, path string, opts TestOptions, progress Progress, log *logrus.Entry) (WriteStats, error) {
	if err := opts.Validate(); err != nil {
		return WriteStats{}, err
	}
	f, err := opener.OpenWrite(path)
	if err != nil {
		return WriteStats{}, &SessionError{Path: path, Phase: PhaseWrite, Err: fmt.Errorf("open device for writing: %w", err)}
	}
	stats, err := WriteTo(ctx, f, opts, progress, log)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = &SessionError{Phase: PhaseWrite, Offset: stats.BytesWritten, Err: fmt.Errorf("close device: %w", cerr)}
	}
	var se *SessionError
	if errors.As(err, &se) {
		se.Path = path
	}
	return stats, err
}

// WriteTo writes the garbage stream for opts to w, sequentially from its
// current position, until w reports that it is full. Running out of space
// is the expected end and is not an error; any other write error is.
func WriteTo(ctx context.Context, w io.Writer, opts TestOptions, progress Progress, log *logrus.Entry) (WriteStats, error) {
	if err := opts.Validate(); err != nil {
		return WriteStats{}, err
	}
	stream, err := garbage.New(opts.Seed, opts.BufferSize)
	if err != nil {
		return WriteStats{}, &SessionError{Phase: PhaseWrite, Err: err}
	}
	return writeChunks(ctx, w, stream, opts, progress, log)
}

// writeChunks runs the generator and writer loop with src as the source of
// chunks.
func writeChunks(ctx context.Context, w io.Writer, src filler, opts TestOptions, progress Progress, log *logrus.Entry) (stats WriteStats, err error) {
	progress = progressOrNop(progress)
	log = entryOrDiscard(log).WithField("phase", PhaseWrite)

	if opts.DeviceCapacity > 0 {
		w = LimitWriter(w, opts.DeviceCapacity)
	}

	q := newChunkQueue(opts.queueDepth(), opts.BufferSize)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.generate(src, done, log)
	}()
	defer func() {
		close(done)
		wg.Wait()
		stats.PeakQueued = int(q.peak.Load())
		stats.Buffers = int(q.allocated.Load())
	}()

	progress.Begin(PhaseWrite, opts.DeviceCapacity)
	defer progress.End()

	fail := func(err error) error {
		return &SessionError{Phase: PhaseWrite, Offset: stats.BytesWritten, Err: err}
	}
	for {
		var (
			buf []byte
			ok  bool
		)
		select {
		case buf, ok = <-q.ch:
		default:
			log.Debug("Receiving bytes to write: pipeline stall")
			select {
			case buf, ok = <-q.ch:
			case <-ctx.Done():
				return stats, fail(ctx.Err())
			}
		}
		if !ok {
			return stats, fail(q.err)
		}
		if err := ctx.Err(); err != nil {
			return stats, fail(err)
		}

		n, werr := w.Write(buf)
		if n > 0 {
			stats.BytesWritten += uint64(n)
			progress.Advance(uint64(n))
		}
		if werr != nil || n < len(buf) {
			if isDeviceFull(n, len(buf), werr) {
				stats.DeviceFull = true
				log.WithField("bytes", stats.BytesWritten).Debug("Device is full")
				return stats, syncTarget(w, opts, fail)
			}
			return stats, fail(fmt.Errorf("write: %w", werr))
		}
		stats.Chunks++
		q.recycle(buf)
	}
}

func syncTarget(w io.Writer, opts TestOptions, fail func(error) error) error {
	if !opts.Sync {
		return nil
	}
	if l, ok := w.(*limitWriter); ok {
		w = l.w
	}
	s, ok := w.(interface{ Sync() error })
	if !ok {
		return nil
	}
	if err := s.Sync(); err != nil {
		return fail(fmt.Errorf("sync: %w", err))
	}
	return nil
}
