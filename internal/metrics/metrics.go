// Package metrics exposes cost report counters on the default Prometheus registry.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/me/omicsx/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
)

// ResultOK is the result label of a successful report.
const ResultOK = "ok"

var (
	initOnce sync.Once

	costReportsCounter       *prometheus.CounterVec
	costReportDurationMetric prometheus.Histogram
	pricingLoadsCounter      *prometheus.CounterVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		costReportsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cost_reports_total",
				Help: "Total number of run cost reports by result.",
			},
			[]string{"result"},
		)

		costReportDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cost_report_duration_seconds",
				Help:    "Duration of run cost reports in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		pricingLoadsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricing_loads_total",
				Help: "Total number of pricing catalog loads by source.",
			},
			[]string{"source"},
		)

		prometheus.MustRegister(
			costReportsCounter,
			costReportDurationMetric,
			pricingLoadsCounter,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, kind := range []model.ErrorKind{
			model.KindPricingUnavailable,
			model.KindExecutionNotFound,
			model.KindUnknownResourceType,
			model.KindStoragePricingUnavailable,
			model.KindPaginationOverflow,
			model.KindBackend,
			model.KindValidation,
		} {
			costReportsCounter.WithLabelValues(ResultLabel(kind))
		}
		costReportsCounter.WithLabelValues(ResultOK)
	})
}

// ResultLabel is the result label for an error kind.
func ResultLabel(kind model.ErrorKind) string {
	if kind == "" {
		return "error"
	}
	return strings.ToLower(string(kind))
}

// ObserveCostReport records one report and how long it took.
func ObserveCostReport(err error, d time.Duration) {
	Init()
	result := ResultOK
	if err != nil {
		result = ResultLabel(model.KindOf(err))
	}
	costReportsCounter.WithLabelValues(result).Inc()
	costReportDurationMetric.Observe(d.Seconds())
}

// IncPricingLoad counts one catalog load from source ("file" or "endpoint").
func IncPricingLoad(source string) {
	Init()
	pricingLoadsCounter.WithLabelValues(source).Inc()
}
