package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueueTasks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "petrel_queue_tasks_total",
		Help: "Total tasks completed by the request queue",
	})
	QueueRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "petrel_queue_retries_total",
		Help: "Total task retries after failure",
	})
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "petrel_queue_depth",
		Help: "Current request queue depth",
	})
	QueueTaskDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "petrel_queue_task_duration_seconds",
		Help:    "Task duration seconds, including retries",
		Buckets: prometheus.DefBuckets,
	})
	Actions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "petrel_actions_total",
		Help: "Total actions performed, by kind",
	}, []string{"kind"})
	LoopRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "petrel_loop_runs_total",
		Help: "Total loop iterations, by loop",
	}, []string{"loop"})
	LoopErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "petrel_loop_errors_total",
		Help: "Total loop iteration errors, by loop",
	}, []string{"loop"})
	Approvals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "petrel_approvals_total",
		Help: "Approval outcomes, by terminal status",
	}, []string{"outcome"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "petrel_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "petrel_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "petrel_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(
		QueueTasks, QueueRetries, QueueDepth, QueueTaskDuration,
		Actions, LoopRuns, LoopErrors, Approvals, APIRetries,
		CommandRuns, CommandErrors,
	)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveQueueTask records a completed task's duration.
func ObserveQueueTask(start time.Time) {
	QueueTaskDuration.Observe(time.Since(start).Seconds())
}

// IncAction increments the performed-action counter for a kind.
func IncAction(kind string) { Actions.WithLabelValues(kind).Inc() }

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

// IncCommandRun increments the run counter for a CLI command.
func IncCommandRun(cmd string) { CommandRuns.WithLabelValues(cmd).Inc() }

// IncCommandError increments the error counter for a CLI command.
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
