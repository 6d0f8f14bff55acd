package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PlannedWorkers tracks the number of slots planned for a job.
var PlannedWorkers = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "fanout_orchestrator_planned_workers",
		Help: "Number of worker slots planned for the job",
	},
	[]string{"job"},
)

// LaunchesTotal tracks worker launches submitted to the platform.
var LaunchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fanout_orchestrator_launches_total",
		Help: "Total worker launches submitted",
	},
	[]string{"job"},
)

// LaunchesSkippedTotal tracks slots found in the ledger and therefore not relaunched.
var LaunchesSkippedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fanout_orchestrator_launches_skipped_total",
		Help: "Total launches skipped because the slot was already in the ledger",
	},
	[]string{"job"},
)

// LaunchErrorsTotal tracks failed launch submissions.
var LaunchErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fanout_orchestrator_launch_errors_total",
		Help: "Total failed launch submissions",
	},
	[]string{"job"},
)

// LaunchLatency tracks how long a launch submission takes.
var LaunchLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "fanout_orchestrator_launch_latency_seconds",
		Help:    "Launch submission round-trip latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"job"},
)

// StatusPollsTotal tracks run status queries.
var StatusPollsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fanout_orchestrator_status_polls_total",
		Help: "Total run status queries",
	},
	[]string{"job"},
)

// PollErrorsTotal tracks failed run status queries.
var PollErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fanout_orchestrator_poll_errors_total",
		Help: "Total failed run status queries",
	},
	[]string{"job"},
)

// ActiveRuns tracks runs launched but not yet observed in a terminal state.
var ActiveRuns = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "fanout_orchestrator_active_runs",
		Help: "Runs not yet observed in a terminal state",
	},
	[]string{"job"},
)

// RunsTerminalTotal tracks runs observed in each terminal state.
var RunsTerminalTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fanout_orchestrator_runs_terminal_total",
		Help: "Total runs observed in a terminal state",
	},
	[]string{"job", "state"},
)

// CancellationsTotal tracks cancel requests issued by failure sweeps and timeouts.
var CancellationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fanout_orchestrator_cancellations_total",
		Help: "Total cancel requests by result",
	},
	[]string{"job", "result"},
)

// ItemsAggregated tracks the item count of the last job report.
var ItemsAggregated = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "fanout_orchestrator_items_aggregated",
		Help: "Total item count of the job's output collections",
	},
	[]string{"job"},
)

// JobsTotal tracks finished jobs by outcome.
var JobsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fanout_orchestrator_jobs_total",
		Help: "Total finished jobs by outcome",
	},
	[]string{"job", "outcome"},
)

// JobDuration tracks the wall time of a job from planning to report.
var JobDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "fanout_orchestrator_job_duration_seconds",
		Help:    "Job wall time from planning to persisted report",
		Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200, 21600},
	},
	[]string{"job"},
)
