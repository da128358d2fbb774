package metrics

import "github.com/prometheus/client_golang/prometheus"

// Task queue Prometheus metrics.
var (
	TasksEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchcore",
			Name:      "tasks_enqueued_total",
			Help:      "Total number of tasks enqueued",
		},
		[]string{"type"},
	)

	TasksRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchcore",
			Name:      "tasks_rejected_total",
			Help:      "Total number of task payloads rejected at enqueue",
		},
		[]string{"code"},
	)

	TaskTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchcore",
			Name:      "task_transitions_total",
			Help:      "Total number of task status transitions",
		},
		[]string{"type", "status"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "searchcore",
			Name:      "task_duration_seconds",
			Help:      "Time from start to finish of processed tasks",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"type", "status"},
	)
)

var taskMetricsRegistered bool

// RegisterTaskMetrics registers task metrics. Must be called once from main.
func RegisterTaskMetrics() {
	if taskMetricsRegistered {
		return
	}
	prometheus.MustRegister(TasksEnqueuedTotal)
	prometheus.MustRegister(TasksRejectedTotal)
	prometheus.MustRegister(TaskTransitionsTotal)
	prometheus.MustRegister(TaskDuration)
	taskMetricsRegistered = true
}
