package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	rootpkg "github.com/getpup/fanout-orchestrator"
	"github.com/getpup/fanout-orchestrator/ledger"
	badgerstore "github.com/getpup/fanout-orchestrator/store/badger"
	"github.com/getpup/fanout-orchestrator/store/memory"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand(viper.New())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// parseRun parses run flags without executing the command.
func parseRun(t *testing.T, args ...string) *viper.Viper {
	t.Helper()

	v := viper.New()
	root := newRootCommand(v)
	cmd, rest, err := root.Find(append([]string{"run"}, args...))
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags(rest))
	bindRunFlags(v, cmd.Flags())
	return v
}

// fakePlatform serves the subset of the platform API used by the client.
// Run N writes itemsPerRun items into collection "out-run-N".
type fakePlatform struct {
	mu          sync.Mutex
	inputItems  int
	itemsPerRun int
	failRun     string
	runs        int
	aborted     []string
}

func (f *fakePlatform) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v2/acts/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "acme~crawler" {
			http.NotFound(w, r)
			return
		}
		writeData(w, map[string]any{"id": "act-1"})
	})

	mux.HandleFunc("POST /v2/acts/{id}/runs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.runs++
		id := fmt.Sprintf("run-%d", f.runs)
		f.mu.Unlock()
		writeData(w, map[string]any{"id": id, "status": "READY", "startedAt": time.Now().UTC()})
	})

	mux.HandleFunc("GET /v2/actor-runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		status := "SUCCEEDED"
		if id == f.failRun {
			status = "FAILED"
		}
		writeData(w, map[string]any{
			"id":               id,
			"status":           status,
			"finishedAt":       time.Now().UTC(),
			"defaultDatasetId": "out-" + id,
		})
	})

	mux.HandleFunc("POST /v2/actor-runs/{id}/abort", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.aborted = append(f.aborted, r.PathValue("id"))
		f.mu.Unlock()
		writeData(w, map[string]any{"id": r.PathValue("id"), "status": "ABORTED"})
	})

	mux.HandleFunc("GET /v2/datasets/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		switch {
		case id == "input":
			writeData(w, map[string]any{"id": id, "itemCount": f.inputItems})
		case strings.HasPrefix(id, "out-"):
			writeData(w, map[string]any{"id": id, "itemCount": f.itemsPerRun})
		default:
			http.NotFound(w, r)
		}
	})

	mux.HandleFunc("POST /v2/datasets", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]any{"id": r.URL.Query().Get("name"), "itemCount": 0})
	})

	return mux
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func runArgs(platformURL string, extra ...string) []string {
	args := []string{
		"run",
		"--platform-url", platformURL,
		"--state-backend", "memory",
		"--input", "input",
		"--actor", "acme/crawler",
		"--workers", "2",
		"--key-prefix", "jobs/cli",
		"--poll-interval", "1ms",
		"--launch-pacing", "1us",
		"--log-level", "none",
		"--metrics-enabled=false",
	}
	return append(args, extra...)
}

func TestJobConfig_FromFlags(t *testing.T) {
	v := parseRun(t,
		"--input", "urls",
		"--actor", "acme/crawler",
		"--workers", "4",
		"--payload", `{"maxDepth": 2}`,
		"--options", `{"memory": 1024}`,
		"--parent-run-id", "parent-1",
		"--worker-timeout", "1m",
		"--count-partial-output",
	)

	job, err := jobConfig(v)

	require.NoError(t, err)
	assert.Equal(t, "urls", job.InputCollectionID)
	assert.Equal(t, "acme/crawler", job.WorkerTargetActorID)
	assert.Equal(t, 4, job.WorkerCount)
	assert.Equal(t, map[string]any{"maxDepth": float64(2)}, job.WorkerPayload)
	assert.Equal(t, map[string]any{"memory": float64(1024)}, job.WorkerOptions)
	assert.Equal(t, "parent-1", job.ParentRunID)
	assert.Equal(t, time.Minute, job.WorkerTimeout)
	assert.True(t, job.CountPartialOutput)
	assert.Nil(t, job.AbortOthersOnFailure, "unset flag keeps the mode dependent default")
}

func TestJobConfig_AbortOthersExplicit(t *testing.T) {
	v := parseRun(t, "--input", "urls", "--actor", "a", "--abort-others=false")

	job, err := jobConfig(v)

	require.NoError(t, err)
	require.NotNil(t, job.AbortOthersOnFailure)
	assert.False(t, *job.AbortOthersOnFailure)
}

func TestJobConfig_FromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
job:
  inputCollectionId: urls
  workerTargetTaskId: acme/nightly
  workerCount: 3
  abortOthersOnFailure: false
  workerPayload: '{"maxDepth": 2}'
`), 0o600))

	v := parseRun(t)
	require.NoError(t, loadConfig(v, path))

	job, err := jobConfig(v)

	require.NoError(t, err)
	assert.Equal(t, "urls", job.InputCollectionID)
	assert.Equal(t, "acme/nightly", job.WorkerTargetTaskID)
	assert.Equal(t, 3, job.WorkerCount)
	assert.Equal(t, map[string]any{"maxDepth": float64(2)}, job.WorkerPayload)
	require.NotNil(t, job.AbortOthersOnFailure)
	assert.False(t, *job.AbortOthersOnFailure)
}

func TestJobConfig_FlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte("job:\n  inputCollectionId: from-file\n  workerCount: 3\n"), 0o600))

	v := parseRun(t, "--input", "from-flag")
	require.NoError(t, loadConfig(v, path))

	job, err := jobConfig(v)

	require.NoError(t, err)
	assert.Equal(t, "from-flag", job.InputCollectionID)
	assert.Equal(t, 3, job.WorkerCount)
}

func TestJobConfig_FromEnvironment(t *testing.T) {
	t.Setenv("FANOUT_JOB_INPUTCOLLECTIONID", "from-env")
	t.Setenv("FANOUT_JOB_WORKERPAYLOAD", `{"mode": "fast"}`)

	job, err := jobConfig(parseRun(t))

	require.NoError(t, err)
	assert.Equal(t, "from-env", job.InputCollectionID)
	assert.Equal(t, map[string]any{"mode": "fast"}, job.WorkerPayload)
}

func TestJobConfig_InvalidPayload(t *testing.T) {
	_, err := jobConfig(parseRun(t, "--payload", "[1, 2]"))

	assert.ErrorIs(t, err, rootpkg.ErrInvalidConfig)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Error(t, err)
	assert.NoError(t, loadConfig(viper.New(), ""))
}

func TestExitCode(t *testing.T) {
	failed := &rootpkg.RunFailedError{SlotIndex: 1, Handle: "run-2", State: rootpkg.RunStateFailed}

	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitRunFailed, exitCode(failed))
	assert.Equal(t, exitRunFailed, exitCode(fmt.Errorf("job failed: %w", failed)))
	assert.Equal(t, exitError, exitCode(rootpkg.ErrInvalidConfig))
	assert.Equal(t, exitError, exitCode(errors.New("boom")))
}

func TestOpenStateStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		v := viper.New()
		v.Set(stateBackendConf, "memory")

		st, closeStore, err := openStateStore(ctx, v, nil)

		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, st)
		assert.NoError(t, closeStore())
	})

	t.Run("badger", func(t *testing.T) {
		v := viper.New()
		v.Set(stateBackendConf, "badger")
		v.Set(statePathConf, t.TempDir())

		st, closeStore, err := openStateStore(ctx, v, nil)
		require.NoError(t, err)
		defer func() {
			assert.NoError(t, closeStore())
		}()

		require.NoError(t, st.Save(ctx, "k", []byte("v")))
		got, err := st.Load(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)
	})

	t.Run("sqlite", func(t *testing.T) {
		v := viper.New()
		v.Set(stateBackendConf, "sqlite")
		v.Set(stateDSNConf, filepath.Join(t.TempDir(), "state.db"))
		v.Set(stateMigrateConf, true)
		v.Set(stateTableConf, "cli_state")

		st, closeStore, err := openStateStore(ctx, v, nil)
		require.NoError(t, err)
		defer func() {
			assert.NoError(t, closeStore())
		}()

		require.NoError(t, st.Save(ctx, "k", []byte("v")))
		got, err := st.Load(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)
	})

	t.Run("sql backend without dsn", func(t *testing.T) {
		v := viper.New()
		v.Set(stateBackendConf, "postgres")

		_, _, err := openStateStore(ctx, v, nil)

		assert.ErrorContains(t, err, "requires --state-dsn")
	})

	t.Run("unknown backend", func(t *testing.T) {
		v := viper.New()
		v.Set(stateBackendConf, "etcd")

		_, _, err := openStateStore(ctx, v, nil)

		assert.ErrorContains(t, err, "unknown state backend")
	})
}

func TestRunCommand_AllWorkersSucceed(t *testing.T) {
	platform := &fakePlatform{inputItems: 10, itemsPerRun: 5}
	srv := httptest.NewServer(platform.handler())
	defer srv.Close()

	out, err := execute(t, runArgs(srv.URL)...)

	require.NoError(t, err)

	var report rootpkg.JobReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, rootpkg.JobOutcomeSucceeded, report.Outcome)
	assert.Equal(t, 10, report.TotalItemCount)
	assert.Equal(t, "jobs-cli-output", report.OutputCollectionID)
	require.Len(t, report.Workers, 2)
	assert.Equal(t, "run-1", report.Workers[0].Launch.Handle)
	assert.Equal(t, "run-2", report.Workers[1].Launch.Handle)
	assert.Equal(t, 2, platform.runs)
}

func TestRunCommand_WorkerFailure(t *testing.T) {
	platform := &fakePlatform{inputItems: 10, itemsPerRun: 5, failRun: "run-2"}
	srv := httptest.NewServer(platform.handler())
	defer srv.Close()

	out, err := execute(t, runArgs(srv.URL)...)

	require.Error(t, err)
	assert.ErrorIs(t, err, rootpkg.ErrRunFailed)
	assert.Equal(t, exitRunFailed, exitCode(err))

	var report rootpkg.JobReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, rootpkg.JobOutcomeFailed, report.Outcome)
	assert.Contains(t, report.Error, "worker 2")
}

func TestRunCommand_FireAndForget(t *testing.T) {
	platform := &fakePlatform{inputItems: 10, itemsPerRun: 5}
	srv := httptest.NewServer(platform.handler())
	defer srv.Close()

	out, err := execute(t, runArgs(srv.URL, "--fire-and-forget")...)

	require.NoError(t, err)

	var report rootpkg.JobReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, rootpkg.JobOutcomeLaunched, report.Outcome)
	assert.Equal(t, 2, platform.runs)
}

func TestRunCommand_WithMetricsServer(t *testing.T) {
	platform := &fakePlatform{inputItems: 4, itemsPerRun: 1}
	srv := httptest.NewServer(platform.handler())
	defer srv.Close()

	_, err := execute(t, runArgs(srv.URL, "--metrics-enabled=true", "--metrics-addr", "127.0.0.1:0")...)

	require.NoError(t, err)
}

func TestRunCommand_MissingPlatformURL(t *testing.T) {
	_, err := execute(t, "run", "--input", "input", "--actor", "acme/crawler", "--state-backend", "memory", "--log-level", "none")

	assert.ErrorIs(t, err, rootpkg.ErrInvalidConfig)
	assert.Equal(t, exitError, exitCode(err))
}

func TestRunCommand_InvalidJob(t *testing.T) {
	platform := &fakePlatform{inputItems: 10, itemsPerRun: 5}
	srv := httptest.NewServer(platform.handler())
	defer srv.Close()

	_, err := execute(t, runArgs(srv.URL, "--workers", "1")...)

	assert.ErrorIs(t, err, rootpkg.ErrInvalidConfig)
	assert.Zero(t, platform.runs)
}

func TestReportCommand(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := badgerstore.Open(badgerstore.Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, ledger.SaveReport(ctx, st, ledger.NewKeys("jobs/done"), rootpkg.JobReport{
		Outcome:            rootpkg.JobOutcomeSucceeded,
		TotalItemCount:     42,
		OutputCollectionID: "results",
	}))
	require.NoError(t, st.Close())

	t.Run("finished job", func(t *testing.T) {
		out, err := execute(t, "report", "--state-path", dir, "--key-prefix", "jobs/done", "--log-level", "none")

		require.NoError(t, err)
		var report rootpkg.JobReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.Equal(t, 42, report.TotalItemCount)
		assert.Equal(t, "results", report.OutputCollectionID)
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := execute(t, "report", "--state-path", dir, "--key-prefix", "jobs/other", "--log-level", "none")

		assert.ErrorIs(t, err, ledger.ErrReportNotFound)
	})
}

func TestMigrateCommand(t *testing.T) {
	t.Run("print", func(t *testing.T) {
		out, err := execute(t, "migrate", "--state-backend", "sqlite", "--state-table", "jobs_state", "--print")

		require.NoError(t, err)
		assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS jobs_state")
	})

	t.Run("apply", func(t *testing.T) {
		dsn := filepath.Join(t.TempDir(), "state.db")

		out, err := execute(t, "migrate", "--state-backend", "sqlite", "--state-dsn", dsn, "--state-migrate=false", "--log-level", "none")

		require.NoError(t, err)
		assert.Contains(t, out, "table fanout_state is ready")
	})

	t.Run("key value backend", func(t *testing.T) {
		out, err := execute(t, "migrate", "--state-backend", "memory")

		require.NoError(t, err)
		assert.Contains(t, out, "needs no migration")
	})
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "fanout dev"))
}
