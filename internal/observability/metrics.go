// Package observability holds the prometheus collectors for the playback feed.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSubscriptions tracks the number of pollers currently running.
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nowplaying_active_subscriptions",
		Help: "Current number of running playback pollers",
	})

	// SubscriptionsTotal counts subscriptions opened, by transport.
	SubscriptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nowplaying_subscriptions_total",
		Help: "Total number of subscriptions opened",
	}, []string{"transport"}) // sse, ws

	// EventsEmitted counts events handed to subscribers, by kind.
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nowplaying_events_emitted_total",
		Help: "Playback events emitted by pollers",
	}, []string{"kind"}) // playback, error, idle

	// UpstreamRequests counts upstream calls made by pollers, by operation and outcome.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nowplaying_upstream_requests_total",
		Help: "Upstream calls made by pollers",
	}, []string{"operation", "outcome"}) // operation: now_playing, refresh; outcome: ok, empty, error

	// TokenRefreshes counts access token refresh attempts, by outcome.
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nowplaying_token_refreshes_total",
		Help: "Access token refresh attempts",
	}, []string{"outcome"}) // ok, refresh_failed, persist_failed

	// PollDelaySeconds tracks the computed wait between polls.
	PollDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nowplaying_poll_delay_seconds",
		Help:    "Wait between consecutive upstream polls",
		Buckets: []float64{0.5, 1, 2, 5, 10, 15, 20},
	})

	// FrameWriteFailures counts transport writes that failed and ended a stream.
	FrameWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nowplaying_frame_write_failures_total",
		Help: "Stream frames that could not be delivered to the client",
	}, []string{"transport"})
)

// Outcome labels shared by counters.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)
