// Package burnin writes a deterministic garbage stream across a block device
// and reads it back to find corrupted chunks.
package burnin

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

const (
	// DefaultBufferSize is used when the device does not report a physical block size.
	DefaultBufferSize = 8192
	// DefaultQueueDepth is the number of generated chunks that may wait for the writer.
	DefaultQueueDepth = 1024
	// MaxRecordedOffsets caps the mismatch offsets kept in a VerifyResult.
	MaxRecordedOffsets = 1024
)

// ErrInvalidOptions is returned by TestOptions.Validate.
var ErrInvalidOptions = errors.New("invalid test options")

// TestOptions configures one device session. The write and verify phases of
// a device must be given identical Seed and BufferSize.
type TestOptions struct {
	BufferSize int
	Seed       uint64
	// DeviceCapacity in bytes; 0 means run until the device reports full.
	DeviceCapacity uint64
	// QueueDepth bounds the write pipeline; 0 means DefaultQueueDepth.
	QueueDepth int
	// Sync flushes the device after the write phase.
	Sync bool
}

// Validate reports whether the options can drive a session.
func (o TestOptions) Validate() error {
	if o.BufferSize <= 0 {
		return fmt.Errorf("%w: buffer size %d", ErrInvalidOptions, o.BufferSize)
	}
	if o.QueueDepth < 0 {
		return fmt.Errorf("%w: queue depth %d", ErrInvalidOptions, o.QueueDepth)
	}
	return nil
}

func (o TestOptions) queueDepth() int {
	if o.QueueDepth == 0 {
		return DefaultQueueDepth
	}
	return o.QueueDepth
}

// NewSeed picks a seed for a run that was not given one.
func NewSeed() uint64 {
	return rand.Uint64()
}
