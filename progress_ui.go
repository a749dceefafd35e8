package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"burnin/burnin"
	"burnin/retrodfrg"
)

// display is the part of retrodfrg.UI that uiProgress drives.
type display interface {
	SetStatusLines([]string)
	SetPhaseDone(string)
	SetTracker(*retrodfrg.Tracker)
	MapCells() int
	LayoutAndDraw()
}

const redrawEvery = 100 * time.Millisecond

// uiProgress paints a session onto the block map. The write phase fills
// cells in as written; the read-back turns them verified or bad.
type uiProgress struct {
	ui  display
	now func() time.Time

	mu         sync.Mutex
	tracker    *retrodfrg.Tracker
	phase      burnin.Phase
	total      uint64
	done       uint64
	mismatches uint64
	started    time.Time
	lastDraw   time.Time
}

func newUIProgress(ui display) *uiProgress {
	return &uiProgress{ui: ui, now: time.Now}
}

func (p *uiProgress) Begin(phase burnin.Phase, total uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase, p.total, p.done = phase, total, 0
	p.started = p.now()
	if p.tracker == nil {
		p.tracker = retrodfrg.NewTracker(total, p.ui.MapCells())
		p.ui.SetTracker(p.tracker)
	}
	p.draw(p.started)
}

func (p *uiProgress) Advance(n uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cell := retrodfrg.CellWritten
	if p.phase == burnin.PhaseVerify {
		cell = retrodfrg.CellVerified
	}
	p.tracker.Mark(p.done, n, cell)
	p.done += n
	if now := p.now(); now.Sub(p.lastDraw) >= redrawEvery {
		p.draw(now)
	}
}

func (p *uiProgress) Mismatch(offset uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mismatches++
	p.tracker.Mark(offset, 0, retrodfrg.CellBad)
}

func (p *uiProgress) End() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ui.SetPhaseDone(string(p.phase))
	p.draw(p.now())
}

func (p *uiProgress) draw(now time.Time) {
	p.lastDraw = now
	p.ui.SetStatusLines(p.statusLines(now))
	p.ui.LayoutAndDraw()
}

func (p *uiProgress) statusLines(now time.Time) []string {
	elapsed := now.Sub(p.started).Truncate(time.Second)
	progress := humanize.IBytes(p.done)
	if p.total > 0 {
		progress = fmt.Sprintf("%s / %s (%s%%)", progress, humanize.IBytes(p.total),
			humanize.FtoaWithDigits(float64(p.done)*100/float64(p.total), 1))
	}
	rate, eta := "-", "-"
	if secs := now.Sub(p.started).Seconds(); secs > 0 {
		r := float64(p.done) / secs
		rate = humanize.IBytes(uint64(r)) + "/s"
		if p.total > p.done && r > 0 {
			eta = time.Duration(float64(p.total-p.done) / r * float64(time.Second)).Truncate(time.Second).String()
		}
	}
	return []string{
		fmt.Sprintf("Phase: %s   Bytes: %s", p.phase, progress),
		fmt.Sprintf("Elapsed: %s   Rate: %s   ETA: %s", elapsed, rate, eta),
		fmt.Sprintf("Mismatches: %d   Bad cells: %d", p.mismatches, p.tracker.Count(retrodfrg.CellBad)),
		"Q to abort",
	}
}
