package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iamgideonidoko/signet-match/internal/models"
)

const namespace = "signet"

var (
	// RecognitionsTotal counts match outcomes by recommendation
	RecognitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognitions_total",
			Help:      "Total number of match calls by recommendation",
		},
		[]string{"recommendation"},
	)

	MatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_duration_seconds",
			Help:      "Time spent inside FindMatches",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	CandidatesEvaluated = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates_evaluated",
			Help:      "Candidates scored per match call after prefiltering",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 7),
		},
	)

	// ScoreCacheLookups counts score cache hits and misses
	ScoreCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_cache_lookups_total",
			Help:      "Score cache lookups by result",
		},
		[]string{"result"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	StoredFingerprints = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_fingerprints",
			Help:      "Fingerprints in the store at the last stats read",
		},
	)

	// DatabaseConnections tracks the store's connection pool by state
	DatabaseConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections",
			Help:      "Store connection pool at the last stats read",
		},
		[]string{"state"},
	)

	once sync.Once
)

// InitMetrics registers all collectors with the default registry. Safe to call repeatedly.
func InitMetrics() {
	once.Do(func() {
		for _, c := range []prometheus.Collector{
			RecognitionsTotal, MatchDuration, CandidatesEvaluated, ScoreCacheLookups,
			HTTPRequests, HTTPDuration, StoredFingerprints, DatabaseConnections,
		} {
			_ = prometheus.DefaultRegisterer.Register(c)
		}
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Recorder feeds matcher measurements into the package collectors.
type Recorder struct{}

func (Recorder) ObserveMatch(rec models.Recommendation, elapsed time.Duration, evaluated int) {
	RecognitionsTotal.WithLabelValues(string(rec)).Inc()
	MatchDuration.Observe(elapsed.Seconds())
	CandidatesEvaluated.Observe(float64(evaluated))
}

func (Recorder) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	ScoreCacheLookups.WithLabelValues(result).Inc()
}
