package metrics

// Collector wraps metrics and provides helper methods with pre-filled labels.
type Collector struct {
	job string
}

// NewCollector creates a new Collector for the given job.
func NewCollector(job string) *Collector {
	return &Collector{job: job}
}

// SetPlannedWorkers sets the planned workers gauge.
func (c *Collector) SetPlannedWorkers(count int) {
	PlannedWorkers.WithLabelValues(c.job).Set(float64(count))
}

// IncLaunches increments the launches counter and the active runs gauge.
func (c *Collector) IncLaunches() {
	LaunchesTotal.WithLabelValues(c.job).Inc()
	ActiveRuns.WithLabelValues(c.job).Inc()
}

// IncLaunchesSkipped increments the skipped launches counter.
func (c *Collector) IncLaunchesSkipped() {
	LaunchesSkippedTotal.WithLabelValues(c.job).Inc()
}

// IncLaunchErrors increments the launch errors counter.
func (c *Collector) IncLaunchErrors() {
	LaunchErrorsTotal.WithLabelValues(c.job).Inc()
}

// ObserveLaunchLatency records a launch latency observation.
func (c *Collector) ObserveLaunchLatency(seconds float64) {
	LaunchLatency.WithLabelValues(c.job).Observe(seconds)
}

// IncStatusPolls increments the status polls counter.
func (c *Collector) IncStatusPolls() {
	StatusPollsTotal.WithLabelValues(c.job).Inc()
}

// IncPollErrors increments the poll errors counter.
func (c *Collector) IncPollErrors() {
	PollErrorsTotal.WithLabelValues(c.job).Inc()
}

// SetActiveRuns sets the active runs gauge.
func (c *Collector) SetActiveRuns(count int) {
	ActiveRuns.WithLabelValues(c.job).Set(float64(count))
}

// IncRunsTerminal increments the terminal runs counter for a state.
func (c *Collector) IncRunsTerminal(state string) {
	RunsTerminalTotal.WithLabelValues(c.job, state).Inc()
}

// IncCancellations increments the cancellations counter. result is "ok" or "error".
func (c *Collector) IncCancellations(result string) {
	CancellationsTotal.WithLabelValues(c.job, result).Inc()
}

// SetItemsAggregated sets the aggregated items gauge.
func (c *Collector) SetItemsAggregated(count int) {
	ItemsAggregated.WithLabelValues(c.job).Set(float64(count))
}

// IncJobs increments the finished jobs counter for an outcome.
func (c *Collector) IncJobs(outcome string) {
	JobsTotal.WithLabelValues(c.job, outcome).Inc()
}

// ObserveJobDuration records a job duration observation.
func (c *Collector) ObserveJobDuration(seconds float64) {
	JobDuration.WithLabelValues(c.job).Observe(seconds)
}
