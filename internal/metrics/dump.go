package metrics

import "github.com/prometheus/client_golang/prometheus"

// Dump Prometheus metrics.
var (
	DumpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "searchcore",
			Name:      "dump_duration_seconds",
			Help:      "Dump creation and import duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"operation"}, // "create" / "import"
	)

	DumpFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchcore",
			Name:      "dump_failures_total",
			Help:      "Total failed dump creations and imports",
		},
		[]string{"operation"},
	)

	DumpImportsByVersion = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchcore",
			Name:      "dump_imports_total",
			Help:      "Total successful imports by archive format version",
		},
		[]string{"version"},
	)
)

var dumpMetricsRegistered bool

// RegisterDumpMetrics registers dump metrics. Must be called once from main.
func RegisterDumpMetrics() {
	if dumpMetricsRegistered {
		return
	}
	prometheus.MustRegister(DumpDuration)
	prometheus.MustRegister(DumpFailuresTotal)
	prometheus.MustRegister(DumpImportsByVersion)
	dumpMetricsRegistered = true
}
