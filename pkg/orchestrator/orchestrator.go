package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	rootpkg "github.com/getpup/fanout-orchestrator"
	"github.com/getpup/fanout-orchestrator/executor"
	"github.com/getpup/fanout-orchestrator/fanout"
	"github.com/getpup/fanout-orchestrator/ledger"
	"github.com/getpup/fanout-orchestrator/store"
	"github.com/getpup/fanout-orchestrator/store/sqlstore"
	"github.com/getpup/pupsourcing/es"
)

// Re-export core types from root package
type (
	// JobConfig is the raw job configuration.
	JobConfig = rootpkg.JobConfig

	// JobReport is the final aggregate persisted at the end of a job.
	JobReport = rootpkg.JobReport

	// WorkerReport is one per-slot entry of a JobReport.
	WorkerReport = rootpkg.WorkerReport

	// RunFailedError identifies the first worker run that did not succeed.
	RunFailedError = rootpkg.RunFailedError
)

// Option configures an Orchestrator.
type Option func(*config)

// config holds the internal configuration for creating an Orchestrator.
type config struct {
	job                 *JobConfig
	platform            executor.Platform
	collections         executor.CollectionStore
	platformURL         string
	platformToken       string
	stateStore          store.StateStore
	db                  *sql.DB
	dialect             sqlstore.Dialect
	tableConfig         sqlstore.TableConfig
	keyPrefix           string
	defaultOutput       string
	pollInterval        time.Duration
	launchPacing        time.Duration
	maxLaunchPacing     time.Duration
	sweepTimeout        time.Duration
	maxConcurrentLookup int
	logger              es.Logger
	metricsEnabled      *bool
}

// New creates a new Orchestrator for one job with the given options.
//
// Required options:
//   - WithJob: the job configuration
//   - WithPlatform or WithPlatformURL: the job-execution platform
//   - WithStateStore or WithDatabase: where the ledger, statuses and report are persisted
//
// Optional configuration (with defaults):
//   - WithCollectionStore: collection store (default: the platform, when it implements one)
//   - WithTableName: state table name for WithDatabase (default: fanout_state)
//   - WithKeyPrefix: state key namespace, reuse it to resume a job (default: fanout)
//   - WithDefaultOutputCollection: job-level output collection (default: <prefix>-output)
//   - WithPollInterval: delay between status queries of a run (default: 10s)
//   - WithLaunchPacing: per-worker launch delay and its cap (default: 100ms, 5s)
//   - WithSweepTimeout: bound of the cancellation sweep (default: 30s)
//   - WithMaxConcurrentLookups: concurrent output lookups (default: 8)
//   - WithLogger: logger for observability (default: nil)
//   - WithMetricsEnabled: enable Prometheus metrics (default: true)
//
// Example:
//
//	orch, err := orchestrator.New(
//	    orchestrator.WithJob(orchestrator.JobConfig{
//	        InputCollectionID:   "urls",
//	        WorkerTargetActorID: "acme/crawler",
//	        WorkerCount:         4,
//	    }),
//	    orchestrator.WithPlatformURL("https://api.example.com", token),
//	    orchestrator.WithDatabase(db, sqlstore.DialectPostgres),
//	    orchestrator.WithKeyPrefix("crawl-2025-01-02"),
//	)
//
// Returns an error if any required option is missing.
func New(opts ...Option) (rootpkg.Orchestrator, error) {
	// Apply defaults
	cfg := &config{
		tableConfig: sqlstore.DefaultTableConfig(),
	}

	// Apply options
	for _, opt := range opts {
		opt(cfg)
	}

	// Validate required fields
	if cfg.job == nil {
		return nil, fmt.Errorf("job is required: use WithJob option")
	}
	if cfg.platform == nil && cfg.platformURL == "" {
		return nil, fmt.Errorf("platform is required: use WithPlatform or WithPlatformURL option")
	}
	if cfg.stateStore == nil && cfg.db == nil {
		return nil, fmt.Errorf("state store is required: use WithStateStore or WithDatabase option")
	}

	// Create platform client if not provided
	if cfg.platform == nil {
		cfg.platform = executor.NewClient(executor.ClientConfig{
			BaseURL: cfg.platformURL,
			Token:   cfg.platformToken,
			Logger:  cfg.logger,
		})
	}

	// Create SQL state store if not provided
	if cfg.stateStore == nil {
		cfg.stateStore = sqlstore.NewWithConfig(cfg.db, cfg.dialect, cfg.tableConfig)
	}

	orch := fanout.New(fanout.Config{
		Job:                       *cfg.job,
		Platform:                  cfg.platform,
		Collections:               cfg.collections,
		StateStore:                cfg.stateStore,
		KeyPrefix:                 cfg.keyPrefix,
		DefaultOutputCollectionID: cfg.defaultOutput,
		PollInterval:              cfg.pollInterval,
		LaunchPacing:              cfg.launchPacing,
		MaxLaunchPacing:           cfg.maxLaunchPacing,
		SweepTimeout:              cfg.sweepTimeout,
		MaxConcurrentLookups:      cfg.maxConcurrentLookup,
		Logger:                    cfg.logger,
		MetricsEnabled:            cfg.metricsEnabled,
	})

	return orch, nil
}

// WithJob sets the job configuration. It is validated when the job runs.
func WithJob(job JobConfig) Option {
	return func(c *config) {
		c.job = &job
	}
}

// WithPlatform sets a custom job-execution platform.
// Use this if you want to provide your own implementation of executor.Platform.
func WithPlatform(platform executor.Platform) Option {
	return func(c *config) {
		c.platform = platform
	}
}

// WithPlatformURL uses the HTTP platform client against baseURL.
func WithPlatformURL(baseURL, token string) Option {
	return func(c *config) {
		c.platformURL = baseURL
		c.platformToken = token
	}
}

// WithCollectionStore sets a custom collection store.
func WithCollectionStore(collections executor.CollectionStore) Option {
	return func(c *config) {
		c.collections = collections
	}
}

// WithStateStore sets a custom state store.
// Use this if you want to provide your own implementation of store.StateStore.
func WithStateStore(st store.StateStore) Option {
	return func(c *config) {
		c.stateStore = st
	}
}

// WithDatabase persists job state in a SQL database of the given dialect.
// The state table must exist, see RunMigrations.
func WithDatabase(db *sql.DB, dialect sqlstore.Dialect) Option {
	return func(c *config) {
		c.db = db
		c.dialect = dialect
	}
}

// WithTableName sets a custom state table name for WithDatabase.
func WithTableName(stateTable string) Option {
	return func(c *config) {
		c.tableConfig = sqlstore.TableConfig{StateTable: stateTable}
	}
}

// WithKeyPrefix sets the namespace of the job's state keys.
func WithKeyPrefix(prefix string) Option {
	return func(c *config) {
		c.keyPrefix = prefix
	}
}

// WithDefaultOutputCollection sets the output collection used when the job configures none.
func WithDefaultOutputCollection(id string) Option {
	return func(c *config) {
		c.defaultOutput = id
	}
}

// WithPollInterval sets the delay between two status queries of the same run.
func WithPollInterval(interval time.Duration) Option {
	return func(c *config) {
		c.pollInterval = interval
	}
}

// WithLaunchPacing sets the per-worker delay between launches and its cap.
func WithLaunchPacing(perWorker, max time.Duration) Option {
	return func(c *config) {
		c.launchPacing = perWorker
		c.maxLaunchPacing = max
	}
}

// WithSweepTimeout bounds the cancellation sweep triggered by a failure.
func WithSweepTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.sweepTimeout = timeout
	}
}

// WithMaxConcurrentLookups bounds concurrent output collection lookups.
func WithMaxConcurrentLookups(n int) Option {
	return func(c *config) {
		c.maxConcurrentLookup = n
	}
}

// WithLogger sets the logger for observability.
func WithLogger(logger es.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetricsEnabled enables or disables Prometheus metrics collection.
func WithMetricsEnabled(enabled bool) Option {
	return func(c *config) {
		c.metricsEnabled = &enabled
	}
}

// LoadReport returns the persisted report of the job stored under prefix.
func LoadReport(ctx context.Context, st store.StateStore, prefix string) (JobReport, error) {
	return ledger.LoadReport(ctx, st, ledger.NewKeys(prefix))
}

// RunMigrations creates the state table used by WithDatabase.
//
// This should typically be run once during application deployment or startup.
//
// To run migrations with a custom table name, use RunMigrationsWithTableName.
func RunMigrations(db *sql.DB, dialect sqlstore.Dialect) error {
	return RunMigrationsWithTableName(db, dialect, sqlstore.DefaultTableConfig())
}

// RunMigrationsWithTableName creates the state table with a custom name.
// Use this if you specified a custom table name via WithTableName option.
func RunMigrationsWithTableName(db *sql.DB, dialect sqlstore.Dialect, config sqlstore.TableConfig) error {
	sql := sqlstore.MigrationUp(dialect, config)

	_, err := db.Exec(sql)
	if err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}

	return nil
}
