package burnin

import (
	"errors"
	"fmt"
	"io"
	"syscall"
)

// ErrNoSpace is returned by a capacity-limited writer once the capacity is used up.
var ErrNoSpace = fmt.Errorf("device capacity reached: %w", syscall.ENOSPC)

// errGeneratorStopped means the generator closed the queue without an error of its own.
var errGeneratorStopped = errors.New("garbage generator stopped")

// SessionError attributes a fatal error to a device and phase.
type SessionError struct {
	Path  string
	Phase Phase
	// Offset is the number of bytes processed before the failure.
	Offset uint64
	Err    error
}

func (e *SessionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s at offset %d: %v", e.Phase, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s %s at offset %d: %v", e.Phase, e.Path, e.Offset, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// isDeviceFull reports whether a write failure means the device has no more room.
func isDeviceFull(n, want int, err error) bool {
	if err == nil {
		return n < want
	}
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, io.ErrShortWrite)
}

// limitWriter fails with ErrNoSpace after n bytes, writing what still fits.
type limitWriter struct {
	w io.Writer
	n uint64
}

// LimitWriter behaves like a device of capacity n on top of w. Image files
// grow instead of filling up, so the write phase runs against this.
func LimitWriter(w io.Writer, n uint64) io.Writer {
	return &limitWriter{w: w, n: n}
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if l.n == 0 {
		return 0, ErrNoSpace
	}
	short := false
	if uint64(len(p)) > l.n {
		p = p[:l.n]
		short = true
	}
	n, err := l.w.Write(p)
	l.n -= uint64(n)
	if err == nil && short {
		err = ErrNoSpace
	}
	return n, err
}
