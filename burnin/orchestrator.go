package burnin

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RunConfig controls how RunAll schedules sessions.
type RunConfig struct {
	// Parallel is the number of devices tested at once; <= 1 runs them in order.
	Parallel int
	// Progress builds the progress sink for a session. Nil means NopProgress.
	Progress func(Session) Progress
	Log      *logrus.Entry
}

// Summary collects the reports of a run, in session order.
type Summary struct {
	Reports []Report
}

// RunAll runs every session. A failing session does not stop the others.
func RunAll(ctx context.Context, sessions []Session, cfg RunConfig) Summary {
	sum := Summary{Reports: make([]Report, len(sessions))}
	var g errgroup.Group
	if cfg.Parallel > 1 {
		g.SetLimit(cfg.Parallel)
	} else {
		g.SetLimit(1)
	}
	for i, s := range sessions {
		g.Go(func() error {
			var p Progress = NopProgress{}
			if cfg.Progress != nil {
				p = cfg.Progress(s)
			}
			sum.Reports[i] = s.Run(ctx, p, cfg.Log)
			return nil
		})
	}
	_ = g.Wait()
	return sum
}

// Failed returns the reports of devices that did not pass.
func (s Summary) Failed() []Report {
	var out []Report
	for _, r := range s.Reports {
		if r.Outcome() != OutcomePass {
			out = append(out, r)
		}
	}
	return out
}

// Outcome is the worst outcome of any session.
func (s Summary) Outcome() Outcome {
	worst := OutcomePass
	for _, r := range s.Reports {
		if o := r.Outcome(); o > worst {
			worst = o
		}
	}
	return worst
}

// ExitCode maps the summary onto a process exit status.
func (s Summary) ExitCode() int {
	switch s.Outcome() {
	case OutcomePass:
		return 0
	case OutcomeMismatch:
		return 1
	default:
		return 2
	}
}

// Log writes one line per device.
func (s Summary) Log(log *logrus.Entry) {
	log = entryOrDiscard(log)
	for _, r := range s.Reports {
		e := log.WithFields(logrus.Fields{"device": r.Path, "seed": r.Seed, "result": r.Outcome().String()})
		switch r.Outcome() {
		case OutcomePass:
			e.WithField("bytes", r.Verify.BytesRead).Info("Device passed")
		case OutcomeMismatch:
			e.WithField("mismatched", r.Verify.Mismatches).
				Error("Data inconsistency detected - replace/RMA the device")
		default:
			e.WithError(r.Err).Error("Device could not be tested")
		}
	}
}
