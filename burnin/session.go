package burnin

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Outcome classifies a finished session.
type Outcome int

const (
	// OutcomePass means every chunk was written and read back intact.
	OutcomePass Outcome = iota
	// OutcomeMismatch means the scan completed and found corrupted chunks.
	OutcomeMismatch
	// OutcomeError means the device could not be tested.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomePass:
		return "pass"
	case OutcomeMismatch:
		return "mismatch"
	default:
		return "error"
	}
}

// Session is the test of one device.
type Session struct {
	Path    string
	Serial  string
	Options TestOptions
	// Opener defaults to FileOpener.
	Opener Opener
}

// Report is what a session found.
type Report struct {
	Path       string
	Serial     string
	Seed       uint64
	BufferSize int
	Write      WriteStats
	Verify     VerifyResult
	// Err is the fatal error that stopped the session, if any.
	Err        error
	WriteTime  time.Duration
	VerifyTime time.Duration
}

// Outcome classifies the report.
func (r Report) Outcome() Outcome {
	switch {
	case r.Err != nil:
		return OutcomeError
	case r.Verify.Mismatches > 0:
		return OutcomeMismatch
	default:
		return OutcomePass
	}
}

// Run writes the whole device and then, if that worked, reads it back.
func (s Session) Run(ctx context.Context, progress Progress, log *logrus.Entry) Report {
	opener := s.Opener
	if opener == nil {
		opener = FileOpener
	}
	log = entryOrDiscard(log).WithField("device", s.Path)
	rep := Report{Path: s.Path, Serial: s.Serial, Seed: s.Options.Seed, BufferSize: s.Options.BufferSize}

	log.WithFields(logrus.Fields{
		"seed":        s.Options.Seed,
		"buffer_size": s.Options.BufferSize,
		"capacity":    s.Options.DeviceCapacity,
	}).Info("Starting test")

	start := time.Now()
	rep.Write, rep.Err = writePath(ctx, opener, s.Path, s.Options, progress, log)
	rep.WriteTime = time.Since(start)
	if rep.Err != nil {
		log.WithError(rep.Err).Error("Write test failed")
		return rep
	}
	log.WithFields(logrus.Fields{
		"bytes":    rep.Write.BytesWritten,
		"duration": rep.WriteTime.Truncate(time.Second).String(),
	}).Info("Write test complete")

	start = time.Now()
	rep.Verify, rep.Err = verifyPath(ctx, opener, s.Path, s.Options, progress, log)
	rep.VerifyTime = time.Since(start)
	if rep.Err != nil {
		log.WithError(rep.Err).Error("Read-back test failed")
		return rep
	}
	if rep.Verify.Mismatches > 0 {
		first, _ := rep.Verify.FirstOffset()
		log.WithFields(logrus.Fields{
			"serial":       s.Serial,
			"mismatched":   rep.Verify.Mismatches,
			"first_offset": first,
		}).Error("DATA INCONSISTENCIES DETECTED")
		return rep
	}
	log.WithField("bytes", rep.Verify.BytesRead).Info("Read-back test complete")
	return rep
}
