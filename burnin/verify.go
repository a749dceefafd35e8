package burnin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"burnin/garbage"
)

// VerifyResult is the outcome of a completed read-back scan.
type VerifyResult struct {
	BytesRead uint64
	Chunks    uint64
	// Mismatches counts chunks that differ from the regenerated stream in
	// at least one byte.
	Mismatches uint64
	// Offsets holds the start offset of the first MaxRecordedOffsets
	// mismatched chunks.
	Offsets []uint64
}

// FirstOffset returns the offset of the first mismatched chunk.
func (r VerifyResult) FirstOffset() (uint64, bool) {
	if len(r.Offsets) == 0 {
		return 0, false
	}
	return r.Offsets[0], true
}

// Verify opens path read-only and compares it against the garbage stream.
func Verify(ctx context.Context, path string, opts TestOptions, progress Progress, log *logrus.Entry) (VerifyResult, error) {
	return verifyPath(ctx, FileOpener, path, opts, progress, log)
}

func verifyPath(ctx context.Context, opener Opener, path string, opts TestOptions, progress Progress, log *logrus.Entry) (VerifyResult, error) {
	if err := opts.Validate(); err != nil {
		return VerifyResult{}, err
	}
	f, err := opener.OpenRead(path)
	if err != nil {
		return VerifyResult{}, &SessionError{Path: path, Phase: PhaseVerify, Err: fmt.Errorf("open device for reading: %w", err)}
	}
	defer f.Close()
	res, err := VerifyFrom(ctx, f, opts, progress, log)
	var se *SessionError
	if errors.As(err, &se) {
		se.Path = path
	}
	return res, err
}

// VerifyFrom reads r sequentially in BufferSize chunks and compares every
// chunk with a freshly derived garbage stream. Mismatches are counted and
// the scan carries on to the end of the device; only read errors and
// generator failures abort it.
func VerifyFrom(ctx context.Context, r io.Reader, opts TestOptions, progress Progress, log *logrus.Entry) (VerifyResult, error) {
	var res VerifyResult
	if err := opts.Validate(); err != nil {
		return res, err
	}
	progress = progressOrNop(progress)
	log = entryOrDiscard(log).WithField("phase", PhaseVerify)

	stream, err := garbage.New(opts.Seed, opts.BufferSize)
	if err != nil {
		return res, &SessionError{Phase: PhaseVerify, Err: err}
	}
	if opts.DeviceCapacity > 0 {
		r = io.LimitReader(r, int64(opts.DeviceCapacity))
	}

	progress.Begin(PhaseVerify, opts.DeviceCapacity)
	defer progress.End()

	fail := func(err error) error {
		return &SessionError{Phase: PhaseVerify, Offset: res.BytesRead, Err: err}
	}
	expected := make([]byte, opts.BufferSize)
	actual := make([]byte, opts.BufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return res, fail(err)
		}
		n, rerr := io.ReadFull(r, actual)
		last := false
		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF):
			return res, nil
		case errors.Is(rerr, io.ErrUnexpectedEOF):
			// The device ended inside this chunk; compare what is there.
			last = true
		default:
			return res, fail(fmt.Errorf("read: %w", rerr))
		}

		if _, err := io.ReadFull(stream, expected); err != nil {
			return res, fail(err)
		}
		if !bytes.Equal(actual[:n], expected[:n]) {
			res.Mismatches++
			if len(res.Offsets) < MaxRecordedOffsets {
				res.Offsets = append(res.Offsets, res.BytesRead)
			}
			log.WithField("offset", res.BytesRead).Warn("Did not read back the exact bytes written")
			progress.Mismatch(res.BytesRead)
		}
		res.BytesRead += uint64(n)
		res.Chunks++
		progress.Advance(uint64(n))
		if last {
			return res, nil
		}
	}
}
