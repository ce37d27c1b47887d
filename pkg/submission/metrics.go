package submission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var SetsQueuedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ecmps",
	Subsystem: "submission",
	Name:      "sets_queued_total",
	Help:      "Count of queued submission sets by set type",
}, []string{"set_type"})

var SetsProcessedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ecmps",
	Subsystem: "submission",
	Name:      "sets_processed_total",
	Help:      "Count of processed submission sets by outcome",
}, []string{"status"})

var SetsProcessedDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ecmps",
	Subsystem: "submission",
	Name:      "sets_processed_duration_seconds",
	Help:      "Duration of submission set processing by outcome",
	Buckets:   []float64{5, 15, 30, 60, 300, 600, 1800, 3600},
}, []string{"status"})
