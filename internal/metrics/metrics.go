// Package metrics defines the process-wide Prometheus collectors. The
// gateway exposes them on /metrics; the worker registers the consumer-side
// collectors into the same default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RouteCacheHits counts channel resolutions served from the local cache.
	RouteCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_route_cache_hits_total",
		Help: "Channel resolutions served from the local route cache.",
	})

	// RouteCacheMisses counts resolutions that had to consult the store.
	RouteCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_route_cache_misses_total",
		Help: "Channel resolutions that consulted the routing store.",
	})

	// Rebinds counts bindings created or repaired by the router.
	Rebinds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_channel_rebinds_total",
		Help: "Channel bindings created or repaired.",
	})

	// PublishAccepted counts publish callbacks that appended a record.
	PublishAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_publish_accepted_total",
		Help: "Publish callbacks accepted and appended to a worker stream.",
	})

	// PublishRejected counts publish callbacks rejected with a 4xxx/5000
	// proxy code, labelled by code.
	PublishRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_publish_rejected_total",
		Help: "Publish callbacks rejected, by proxy error code.",
	}, []string{"code"})

	// RecordsConsumed counts stream records dispatched by a worker.
	RecordsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_records_consumed_total",
		Help: "Stream records read and dispatched by the worker.",
	})

	// DispatchErrors counts records whose decode or handler failed. The
	// cursor advances past these; the counter is the only trace besides logs.
	DispatchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_dispatch_errors_total",
		Help: "Records whose decode or handler callback failed.",
	})

	// TrackedChannels is the number of channels the worker currently holds
	// lifecycle state for.
	TrackedChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worker_tracked_channels",
		Help: "Channels currently tracked as active by the worker.",
	})
)
