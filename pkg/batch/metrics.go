package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vies_batch_records_total",
		Help: "Records looked up by pass and outcome (valid, invalid, unknown, quota)",
	}, []string{"pass", "outcome"})

	batchPassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vies_batch_pass_duration_seconds",
		Help:    "Duration of one batch pass in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"pass"})

	quotaRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vies_quota_rejections_total",
		Help: "Total member state quota rejections by country",
	}, []string{"country"})
)
