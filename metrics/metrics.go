// Package metrics 定义 recserve 的 Prometheus 指标，通过 promauto 注册到默认 registry。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 推荐请求
	RecommendationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recserve_recommendation_requests_total",
			Help: "Total recommendation requests by algorithm version and outcome",
		},
		[]string{"algorithm_version", "outcome"}, // outcome: hit, computed, error
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recserve_recommendation_duration_seconds",
			Help:    "Recommendation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"algorithm_version"},
	)

	RecommendationsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recserve_recommendations_generated_total",
			Help: "Total recommendation entries produced by scoring",
		},
		[]string{"algorithm_version"},
	)

	// 缓存
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recserve_cache_hits_total",
		Help: "Total recommendation cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recserve_cache_misses_total",
		Help: "Total recommendation cache misses",
	})
	CacheSets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recserve_cache_sets_total",
		Help: "Total recommendation cache writes",
	})
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recserve_cache_errors_total",
			Help: "Total cache backend and codec errors",
		},
		[]string{"operation"},
	)
	CacheInvalidatedKeys = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recserve_cache_invalidated_keys_total",
		Help: "Total cache keys removed by prefix invalidation",
	})
	CacheEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recserve_cache_enabled",
		Help: "1 when the recommendation cache is enabled, 0 when degraded",
	})

	// 反馈
	FeedbackRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recserve_feedback_recorded_total",
			Help: "Total feedback interactions recorded",
		},
		[]string{"interaction_type"},
	)
	FeedbackPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recserve_feedback_events_published_total",
			Help: "Feedback events handed to the event stream by outcome",
		},
		[]string{"outcome"}, // outcome: sent, failed, dropped
	)

	// 批处理
	BatchJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recserve_batch_jobs_total",
			Help: "Batch jobs by final status",
		},
		[]string{"status"},
	)
	BatchUsersProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recserve_batch_users_processed_total",
		Help: "Total users regenerated by batch jobs",
	})

	// 文档存储
	DocStoreOps = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recserve_docstore_operation_duration_seconds",
			Help:    "Document store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)
	DocStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recserve_docstore_errors_total",
			Help: "Document store operation failures",
		},
		[]string{"backend", "operation"},
	)
	DocStoreBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recserve_docstore_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"backend"},
	)

	// HTTP
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recserve_api_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordRecommendation 记录一次推荐请求。
func RecordRecommendation(version, outcome string, duration time.Duration) {
	RecommendationRequests.WithLabelValues(version, outcome).Inc()
	RecommendationDuration.WithLabelValues(version).Observe(duration.Seconds())
}

// RecordDocStoreOp 记录一次文档存储操作。
func RecordDocStoreOp(backend, operation string, duration time.Duration, err error) {
	DocStoreOps.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		DocStoreErrors.WithLabelValues(backend, operation).Inc()
	}
}
