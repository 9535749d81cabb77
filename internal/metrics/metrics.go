// Package metrics holds the Prometheus instruments for reconcile runs
// and their collaborators.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encore_runs_total",
			Help: "Total number of reconcile runs by outcome",
		},
		[]string{"outcome"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "encore_run_duration_seconds",
			Help:    "Duration of reconcile runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ObservationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "encore_observations_total",
			Help: "Total number of recent-play observations considered",
		},
	)

	MatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "encore_matches_total",
			Help: "Total number of observations matched to a catalog row",
		},
	)

	UnmatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encore_unmatched_total",
			Help: "Total number of observations that matched nothing",
		},
		[]string{"reason"}, // "track", "artist"
	)

	RecommendationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "encore_recommendations_total",
			Help: "Total number of recommendation lists produced",
		},
	)

	UnavailableTargetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "encore_unavailable_targets_total",
			Help: "Total number of matched tracks skipped for missing features",
		},
	)

	ResolverCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encore_resolver_cache_total",
			Help: "Track ID cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss"
	)

	SpotifyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encore_spotify_requests_total",
			Help: "Spotify Web API requests by endpoint and status code",
		},
		[]string{"endpoint", "status"},
	)

	NotifyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encore_notify_total",
			Help: "Run notifications by result",
		},
		[]string{"result"}, // "ok", "error"
	)
)

// RecordRun records the outcome and duration of one run.
func RecordRun(outcome string, d time.Duration) {
	RunsTotal.WithLabelValues(outcome).Inc()
	RunDuration.Observe(d.Seconds())
}

// RecordSpotifyRequest records one Spotify response. status 0 means a transport error.
func RecordSpotifyRequest(endpoint string, status int) {
	SpotifyRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// RecordCacheLookup records a resolver cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		ResolverCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	ResolverCacheTotal.WithLabelValues("miss").Inc()
}

// RecordNotify records a notification attempt.
func RecordNotify(err error) {
	if err != nil {
		NotifyTotal.WithLabelValues("error").Inc()
		return
	}
	NotifyTotal.WithLabelValues("ok").Inc()
}
