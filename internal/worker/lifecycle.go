package worker

import (
	"sync"
	"time"

	"github.com/realtime-ai/realtime-message-gateway/internal/metrics"
)

// ChannelState is the lifecycle state of a tracked channel.
type ChannelState string

const (
	// StateActive - the channel has seen a message and has not timed out.
	StateActive ChannelState = "active"

	// StateInactive - final state reported when the channel times out or
	// the worker stops. Inactive channels are no longer tracked.
	StateInactive ChannelState = "inactive"
)

// ChannelActivity is the lifecycle record of one channel as observed by
// this worker. Snapshots handed to callbacks are copies; the tracker keeps
// the live entry.
type ChannelActivity struct {
	Channel        string       `json:"channel"`
	State          ChannelState `json:"state"`
	FirstMessageAt time.Time    `json:"firstMessageAt"`
	LastMessageAt  time.Time    `json:"lastMessageAt"`
	MessageCount   int64        `json:"messageCount"`
}

// Tracker maintains the per-channel lifecycle state owned by a worker
// process. State is in-memory only and discarded on worker exit; a channel
// that moves to another worker starts a fresh lifecycle there.
//
// Safe for concurrent use: the consume loop and the inactivity sweeper run
// on different goroutines.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*ChannelActivity

	// now is replaceable in tests.
	now func() time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[string]*ChannelActivity),
		now:     time.Now,
	}
}

// SetClock replaces the tracker's time source. Test helper.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// RecordMessage registers one message for channel, creating the lifecycle
// entry when absent, and returns the updated snapshot plus whether this
// call created the entry. Creation and the increment happen under a single
// lock so the sweeper can never retire the entry between them; a message
// arriving after a sweep starts a fresh cycle and reports creation again.
func (t *Tracker) RecordMessage(channel string) (ChannelActivity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[channel]
	if !ok {
		entry = &ChannelActivity{
			Channel:        channel,
			State:          StateActive,
			FirstMessageAt: t.now(),
		}
		t.entries[channel] = entry
		metrics.TrackedChannels.Set(float64(len(t.entries)))
	}
	entry.MessageCount++
	entry.LastMessageAt = t.now()
	return *entry, !ok
}

// SweepInactive removes every channel whose last activity is older than
// timeout and returns their final snapshots with State set to inactive.
func (t *Tracker) SweepInactive(timeout time.Duration) []ChannelActivity {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-timeout)
	var swept []ChannelActivity
	for channel, entry := range t.entries {
		if entry.LastMessageAt.Before(cutoff) {
			entry.State = StateInactive
			swept = append(swept, *entry)
			delete(t.entries, channel)
		}
	}
	if len(swept) > 0 {
		metrics.TrackedChannels.Set(float64(len(t.entries)))
	}
	return swept
}

// DrainAll removes every tracked channel and returns their final snapshots.
// Called on graceful stop so consumers see channel:inactive for everything.
func (t *Tracker) DrainAll() []ChannelActivity {
	t.mu.Lock()
	defer t.mu.Unlock()

	drained := make([]ChannelActivity, 0, len(t.entries))
	for channel, entry := range t.entries {
		entry.State = StateInactive
		drained = append(drained, *entry)
		delete(t.entries, channel)
	}
	metrics.TrackedChannels.Set(0)
	return drained
}

// Len returns the number of currently tracked channels.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Get returns the live snapshot for channel, if tracked.
func (t *Tracker) Get(channel string) (ChannelActivity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[channel]
	if !ok {
		return ChannelActivity{}, false
	}
	return *entry, true
}
