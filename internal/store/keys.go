package store

// Key layout of the routing store. These are an external contract shared
// with every process that touches the store (the broker-facing gateway,
// the workers, and any operational tooling) and must not change without
// coordinating all of them.
const (
	// ActiveWorkersKey is the sorted set holding the worker registry.
	// Member = worker id, score = millisecond epoch of the last heartbeat.
	ActiveWorkersKey = "workers:active"

	// channelRoutePrefix prefixes the string key holding a channel binding.
	channelRoutePrefix = "channel:route:"

	// workerStreamPrefix prefixes the per-worker append-only stream.
	workerStreamPrefix = "messages:worker:"

	// workerInfoPrefix prefixes the advisory per-worker info hash.
	workerInfoPrefix = "worker:info:"
)

// BindingKey returns the string key holding the binding for channel.
func BindingKey(channel string) string {
	return channelRoutePrefix + channel
}

// WorkerStreamKey returns the stream key for the given worker id.
func WorkerStreamKey(workerID string) string {
	return workerStreamPrefix + workerID
}

// WorkerInfoKey returns the info-hash key for the given worker id.
func WorkerInfoKey(workerID string) string {
	return workerInfoPrefix + workerID
}

// PayloadField is the single field name under which every stream record
// carries its JSON document.
const PayloadField = "payload"
