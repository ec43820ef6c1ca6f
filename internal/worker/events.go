// Package worker implements the stream-consuming worker runtime: registry
// heartbeat, the per-worker stream consume loop, channel lifecycle tracking,
// and the event surface application code plugs into.
package worker

import (
	"context"
	"time"

	"github.com/realtime-ai/realtime-message-gateway/internal/message"
)

// EventType identifies the kind of event emitted by the runtime.
type EventType string

const (
	// EventChannelActive fires once when the first record for a channel is
	// observed, before the corresponding EventChannelMessage.
	EventChannelActive EventType = "channel:active"

	// EventChannelMessage fires for every message record, after the
	// lifecycle entry has been updated.
	EventChannelMessage EventType = "channel:message"

	// EventChannelInactive fires once when a tracked channel times out or
	// the worker stops. It carries the final activity snapshot.
	EventChannelInactive EventType = "channel:inactive"

	// EventPresenceJoin and EventPresenceLeave mirror presence records.
	// They do not touch channel lifecycle state.
	EventPresenceJoin  EventType = "presence:join"
	EventPresenceLeave EventType = "presence:leave"

	// EventError carries decode and handler failures. The consume loop
	// advances past the failed record either way.
	EventError EventType = "error"
)

// Event is the envelope delivered to handlers and broadcast subscribers.
// Message is set for message and presence events, Activity for lifecycle
// events, Err for error events.
type Event struct {
	Type     EventType
	Channel  string
	Message  *message.Payload
	Activity *ChannelActivity
	Err      error
	Time     time.Time
}

// Handlers is the callback interface of the worker. All fields are
// optional; absent callbacks are skipped. Callbacks run synchronously on
// the consume loop: the cursor does not advance past a record until its
// handler returns, so a slow handler backpressures consumption.
// Errors returned (or panics raised) by callbacks are converted into
// EventError events and do not stop the worker.
type Handlers struct {
	OnChannelActive   func(ctx context.Context, activity ChannelActivity) error
	OnChannelMessage  func(ctx context.Context, msg *message.Payload) error
	OnChannelInactive func(ctx context.Context, activity ChannelActivity) error
	OnPresenceJoin    func(ctx context.Context, msg *message.Payload) error
	OnPresenceLeave   func(ctx context.Context, msg *message.Payload) error
	OnError           func(err error)
}
