package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики выполнения. Регистрируются в prometheus.DefaultRegisterer
// и отдаются на /metrics через promhttp.Handler().
var (
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piper_pipeline_runs_total",
		Help: "Total pipeline runs by final status",
	}, []string{"pipeline", "status"})

	PipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "piper_pipeline_duration_seconds",
		Help:    "Pipeline run duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"pipeline"})

	TaskExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piper_task_executions_total",
		Help: "Total task executions by type and final status",
	}, []string{"type", "status"})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "piper_task_duration_seconds",
		Help:    "Task execution duration by type",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piper_agent_http_requests_total",
		Help: "Total HTTP requests handled by piper-agent",
	}, []string{"path", "code"})
)

// RecordRun учитывает завершённый run.
func RecordRun(pipeline, status string, d time.Duration) {
	PipelineRuns.WithLabelValues(pipeline, status).Inc()
	PipelineDuration.WithLabelValues(pipeline).Observe(d.Seconds())
}

// RecordTask учитывает завершённое выполнение задачи.
func RecordTask(taskType, status string, d time.Duration) {
	TaskExecutions.WithLabelValues(taskType, status).Inc()
	TaskDuration.WithLabelValues(taskType).Observe(d.Seconds())
}
