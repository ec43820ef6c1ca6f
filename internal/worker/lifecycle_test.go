package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordMessage(t *testing.T) {
	tr := NewTracker()

	activity, created := tr.RecordMessage("chat")
	assert.True(t, created)
	assert.Equal(t, "chat", activity.Channel)
	assert.Equal(t, StateActive, activity.State)
	assert.Equal(t, int64(1), activity.MessageCount)
	assert.False(t, activity.FirstMessageAt.IsZero())

	// Subsequent messages update the same entry.
	for i := int64(2); i <= 4; i++ {
		activity, created = tr.RecordMessage("chat")
		assert.False(t, created)
		assert.Equal(t, i, activity.MessageCount)
	}

	live, ok := tr.Get("chat")
	require.True(t, ok)
	assert.Equal(t, int64(4), live.MessageCount)
	assert.True(t, live.LastMessageAt.Compare(live.FirstMessageAt) >= 0)
	assert.Equal(t, 1, tr.Len())
}

func TestTrackerReportsCreationAfterSweep(t *testing.T) {
	tr := NewTracker()

	now := time.Now()
	tr.SetClock(func() time.Time { return now })

	_, created := tr.RecordMessage("chat")
	require.True(t, created)

	now = now.Add(time.Minute)
	swept := tr.SweepInactive(30 * time.Second)
	require.Len(t, swept, 1)

	// A message after the sweep starts a fresh cycle: creation is reported
	// again so the caller emits a new channel:active.
	activity, created := tr.RecordMessage("chat")
	assert.True(t, created)
	assert.Equal(t, int64(1), activity.MessageCount)
}

func TestTrackerSweepInactive(t *testing.T) {
	tr := NewTracker()

	now := time.Now()
	tr.SetClock(func() time.Time { return now })

	tr.RecordMessage("chat:old")

	// A second channel stays fresh.
	now = now.Add(time.Minute)
	tr.RecordMessage("chat:fresh")

	swept := tr.SweepInactive(30 * time.Second)
	require.Len(t, swept, 1)
	assert.Equal(t, "chat:old", swept[0].Channel)
	assert.Equal(t, StateInactive, swept[0].State)
	assert.Equal(t, int64(1), swept[0].MessageCount)

	// Swept channels are gone.
	assert.Equal(t, 1, tr.Len())
	_, ok := tr.Get("chat:old")
	assert.False(t, ok)
}

func TestTrackerSweepKeepsActiveChannels(t *testing.T) {
	tr := NewTracker()
	tr.RecordMessage("chat")

	swept := tr.SweepInactive(30 * time.Second)
	assert.Empty(t, swept)
	assert.Equal(t, 1, tr.Len())
}

func TestTrackerDrainAll(t *testing.T) {
	tr := NewTracker()
	tr.RecordMessage("chat")
	tr.RecordMessage("chat")
	tr.RecordMessage("chat:room-1")

	drained := tr.DrainAll()
	require.Len(t, drained, 2)
	for _, activity := range drained {
		assert.Equal(t, StateInactive, activity.State)
	}
	assert.Equal(t, 0, tr.Len())
}

func TestTrackerSnapshotsAreCopies(t *testing.T) {
	tr := NewTracker()
	activity, _ := tr.RecordMessage("chat")
	activity.MessageCount = 99

	live, ok := tr.Get("chat")
	require.True(t, ok)
	assert.Equal(t, int64(1), live.MessageCount)
}
