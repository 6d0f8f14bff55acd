package orchestrator

import "context"

// Orchestrator drives one fan-out/fan-in job from planning to the final report.
type Orchestrator interface {
	// Run executes the job. It blocks until the job finishes or ctx is cancelled.
	//
	// The orchestrator will:
	// 1. Resolve the worker target and the input/output collections
	// 2. Partition the input into one slot per worker
	// 3. Launch every slot missing from the launch ledger, in slot order
	// 4. Wait for every run to reach a terminal state (unless fire-and-forget)
	// 5. On the first failure, optionally cancel the remaining runs and wait
	//    for them to settle
	// 6. Aggregate results and persist the JobReport
	//
	// Run returns the persisted report together with:
	// - an error wrapping ErrInvalidConfig or ErrLaunchFailed for fatal setup failures
	// - a *RunFailedError when a worker did not succeed
	// - nil when every worker succeeded (or, in fire-and-forget mode, was launched)
	//
	// Running the same job again after a crash resumes from the ledger and
	// never relaunches a slot that was already launched. Running a job whose
	// report was already persisted returns that report without touching the
	// platform; a failed one comes back with an error wrapping ErrRunFailed
	// when a worker did not succeed.
	Run(ctx context.Context) (JobReport, error)
}
