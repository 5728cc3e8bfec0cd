package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	monthsImported = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bwa",
		Subsystem: "import",
		Name:      "months_imported_total",
		Help:      "Reporting months persisted by imports.",
	})

	monthsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bwa",
		Subsystem: "import",
		Name:      "months_skipped_total",
		Help:      "Reporting months skipped because they were already imported.",
	})

	documentsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bwa",
		Subsystem: "import",
		Name:      "documents_rejected_total",
		Help:      "Documents rejected before persistence, by reason.",
	}, []string{"reason"})

	crossCheckWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bwa",
		Subsystem: "import",
		Name:      "crosscheck_warnings_total",
		Help:      "Total costs cross-check mismatches.",
	})

	importDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bwa",
		Subsystem: "import",
		Name:      "duration_seconds",
		Help:      "Time spent parsing and persisting one document.",
		Buckets:   prometheus.DefBuckets,
	})
)
