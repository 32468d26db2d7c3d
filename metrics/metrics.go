package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// RunsTotal counts finished bot runs by final state.
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incident",
		Subsystem: "bot",
		Name:      "runs_total",
		Help:      "Total number of bot runs, labeled by result (done, failed).",
	}, []string{"result"})

	// StageDurationSeconds is the time spent in each pipeline stage.
	StageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "incident",
		Subsystem: "bot",
		Name:      "stage_duration_seconds",
		Help:      "Time spent in each pipeline stage.",
		// Generation and uploads dominate, keep buckets coarse.
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	// UploadAttemptsTotal counts individual image host requests.
	UploadAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incident",
		Subsystem: "bot",
		Name:      "upload_attempts_total",
		Help:      "Total number of image upload attempts, labeled by provider and result (success, retryable, permanent).",
	}, []string{"provider", "result"})

	// PostsTotal counts publish calls per platform.
	PostsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incident",
		Subsystem: "bot",
		Name:      "posts_total",
		Help:      "Total number of publish calls, labeled by platform and result.",
	}, []string{"platform", "result"})

	// LastSuccessSeconds is a unix timestamp (seconds) of the last run that reached Done.
	LastSuccessSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "incident",
		Subsystem: "bot",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp (seconds) of the last successful run.",
	})

	// TokenDaysRemaining is the number of days before the Facebook token expires.
	TokenDaysRemaining = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "incident",
		Subsystem: "bot",
		Name:      "facebook_token_days_remaining",
		Help:      "Days until the stored Facebook long-lived token expires.",
	})
)

// Register registers bot metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			RunsTotal,
			StageDurationSeconds,
			UploadAttemptsTotal,
			PostsTotal,
			LastSuccessSeconds,
			TokenDaysRemaining,
		)
	})
}

// ObserveStage records the time elapsed since start for a stage.
func ObserveStage(stage string, start time.Time) {
	StageDurationSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func NowUnixSeconds() float64 {
	return float64(time.Now().Unix())
}
