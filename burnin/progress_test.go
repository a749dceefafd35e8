package burnin

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogProgressThrottles(t *testing.T) {
	logger, hook := test.NewNullLogger()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewLogProgress(logrus.NewEntry(logger), 10*time.Second)
	p.now = func() time.Time { return now }

	p.Begin(PhaseWrite, 4<<20)
	for i := 0; i < 5; i++ {
		now = now.Add(time.Second)
		p.Advance(1 << 20)
	}
	// 5s elapsed: nothing printed between Begin and here.
	require.Len(t, hook.AllEntries(), 1)

	now = now.Add(5 * time.Second)
	p.Advance(0)
	p.Mismatch(1024)
	p.End()

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, "Phase started", entries[0].Message)
	assert.Equal(t, "4.0 MiB", entries[0].Data["total"])
	assert.Equal(t, "Progress", entries[1].Message)
	assert.Equal(t, "5.0 MiB", entries[1].Data["bytes"])
	assert.Equal(t, "Phase finished", entries[2].Message)
	assert.Equal(t, uint64(1), entries[2].Data["mismatches"])
	assert.Equal(t, uint64(5<<20), p.done)
}

func TestNopProgressSatisfiesInterface(t *testing.T) {
	var p Progress = NopProgress{}
	p.Begin(PhaseVerify, 0)
	p.Advance(1)
	p.Mismatch(0)
	p.End()
	assert.Equal(t, NopProgress{}, progressOrNop(nil))
}
