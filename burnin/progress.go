package burnin

import (
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// Phase names a stage of a device session.
type Phase string

const (
	PhaseWrite  Phase = "write"
	PhaseVerify Phase = "verify"
)

// Progress receives the side-channel signals of a running phase. It is not
// needed for correctness. Calls for one session come from one goroutine.
type Progress interface {
	// Begin starts a phase; total is 0 when the capacity is unknown.
	Begin(phase Phase, total uint64)
	Advance(n uint64)
	Mismatch(offset uint64)
	End()
}

// NopProgress discards everything.
type NopProgress struct{}

func (NopProgress) Begin(Phase, uint64) {}
func (NopProgress) Advance(uint64)      {}
func (NopProgress) Mismatch(uint64)     {}
func (NopProgress) End()                {}

func progressOrNop(p Progress) Progress {
	if p == nil {
		return NopProgress{}
	}
	return p
}

func entryOrDiscard(log *logrus.Entry) *logrus.Entry {
	if log != nil {
		return log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// LogProgress reports progress as periodic log lines.
type LogProgress struct {
	log      *logrus.Entry
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	phase      Phase
	total      uint64
	done       uint64
	mismatches uint64
	started    time.Time
	lastPrint  time.Time
}

// NewLogProgress logs at most once per interval while a phase runs.
func NewLogProgress(log *logrus.Entry, interval time.Duration) *LogProgress {
	return &LogProgress{log: entryOrDiscard(log), interval: interval, now: time.Now}
}

func (p *LogProgress) Begin(phase Phase, total uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase, p.total, p.done, p.mismatches = phase, total, 0, 0
	p.started = p.now()
	p.lastPrint = p.started
	f := logrus.Fields{"phase": phase}
	if total > 0 {
		f["total"] = humanize.IBytes(total)
	}
	p.log.WithFields(f).Info("Phase started")
}

func (p *LogProgress) Advance(n uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += n
	if now := p.now(); now.Sub(p.lastPrint) >= p.interval {
		p.lastPrint = now
		p.entry(now).Info("Progress")
	}
}

// Mismatch only counts; the verifier logs each offset itself.
func (p *LogProgress) Mismatch(uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mismatches++
}

func (p *LogProgress) End() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entry(p.now()).Info("Phase finished")
}

func (p *LogProgress) entry(now time.Time) *logrus.Entry {
	elapsed := now.Sub(p.started)
	f := logrus.Fields{
		"phase":   p.phase,
		"bytes":   humanize.IBytes(p.done),
		"elapsed": elapsed.Truncate(time.Second).String(),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		rate := float64(p.done) / secs
		f["rate"] = humanize.IBytes(uint64(rate)) + "/s"
		if p.total > p.done && rate > 0 {
			eta := time.Duration(float64(p.total-p.done) / rate * float64(time.Second))
			f["eta"] = eta.Truncate(time.Second).String()
		}
	}
	if p.mismatches > 0 {
		f["mismatches"] = p.mismatches
	}
	if p.total > 0 {
		f["total"] = humanize.IBytes(p.total)
		f["percent"] = humanize.FtoaWithDigits(float64(p.done)*100/float64(p.total), 1)
	}
	return p.log.WithFields(f)
}
