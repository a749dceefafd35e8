package burnin

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAllAggregatesOutcomes(t *testing.T) {
	const bs = 128
	good := newMemDevice(16 * bs)
	bad := &flakyMedia{memDevice: newMemDevice(16 * bs), bad: map[int]bool{0: true}}
	opts := TestOptions{BufferSize: bs, Seed: 12}

	sessions := []Session{
		{Path: "good", Options: opts, Opener: good},
		{Path: "missing", Options: TestOptions{BufferSize: bs, DeviceCapacity: 1}, Opener: FileOpener},
		{Path: "bad", Options: opts, Opener: bad},
	}
	sum := RunAll(context.Background(), sessions, RunConfig{Parallel: 3})
	require.Len(t, sum.Reports, 3)
	assert.Equal(t, OutcomePass, sum.Reports[0].Outcome())
	assert.Equal(t, OutcomeError, sum.Reports[1].Outcome())
	assert.Equal(t, OutcomeMismatch, sum.Reports[2].Outcome())
	assert.Equal(t, OutcomeError, sum.Outcome())
	assert.Equal(t, 2, sum.ExitCode())

	failed := sum.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, "missing", failed[0].Path)
	assert.Equal(t, "bad", failed[1].Path)
}

func TestSummaryExitCodes(t *testing.T) {
	assert.Equal(t, 0, Summary{}.ExitCode())
	assert.Equal(t, 0, Summary{Reports: []Report{{}}}.ExitCode())
	assert.Equal(t, 1, Summary{Reports: []Report{{}, {Verify: VerifyResult{Mismatches: 3}}}}.ExitCode())
}

func TestRunAllSequentialByDefault(t *testing.T) {
	var running, maxRunning atomic.Int32
	progress := func(Session) Progress {
		return &concurrencyGauge{running: &running, max: &maxRunning}
	}
	var sessions []Session
	for i := 0; i < 3; i++ {
		dev := newMemDevice(4 * 64)
		dev.delay = time.Millisecond
		sessions = append(sessions, Session{Path: "mem", Options: TestOptions{BufferSize: 64, Seed: 1}, Opener: dev})
	}
	sum := RunAll(context.Background(), sessions, RunConfig{Progress: progress})
	assert.Equal(t, 0, sum.ExitCode())
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestRunAllOverlapsSessionsInParallel(t *testing.T) {
	var running, maxRunning atomic.Int32
	progress := func(Session) Progress {
		return &concurrencyGauge{running: &running, max: &maxRunning}
	}
	var sessions []Session
	for i := 0; i < 4; i++ {
		dev := newMemDevice(16 * 64)
		dev.delay = 5 * time.Millisecond
		sessions = append(sessions, Session{Path: "mem", Options: TestOptions{BufferSize: 64, Seed: 1}, Opener: dev})
	}
	sum := RunAll(context.Background(), sessions, RunConfig{Parallel: 3, Progress: progress})
	assert.Equal(t, 0, sum.ExitCode())
	assert.Greater(t, maxRunning.Load(), int32(1), "sessions ran one after another")
	assert.LessOrEqual(t, maxRunning.Load(), int32(3))
}

func TestSummaryLog(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sum := Summary{Reports: []Report{
		{Path: "a"},
		{Path: "b", Verify: VerifyResult{Mismatches: 1}},
		{Path: "c", Err: assert.AnError},
	}}
	sum.Log(logrus.NewEntry(logger))

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, "Device passed", entries[0].Message)
	assert.Equal(t, "Data inconsistency detected - replace/RMA the device", entries[1].Message)
	assert.Equal(t, "Device could not be tested", entries[2].Message)
}

// concurrencyGauge tracks how many sessions are inside a phase at once.
type concurrencyGauge struct {
	NopProgress
	running, max *atomic.Int32
}

func (c *concurrencyGauge) Begin(Phase, uint64) {
	n := c.running.Add(1)
	for {
		m := c.max.Load()
		if n <= m || c.max.CompareAndSwap(m, n) {
			return
		}
	}
}

func (c *concurrencyGauge) End() { c.running.Add(-1) }
