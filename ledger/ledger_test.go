package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/getpup/fanout-orchestrator"
	"github.com/getpup/fanout-orchestrator/store"
	"github.com/getpup/fanout-orchestrator/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	t.Run("default prefix", func(t *testing.T) {
		k := NewKeys("")

		assert.Equal(t, "fanout", k.Prefix())
		assert.Equal(t, "fanout/ledger/3", k.Launch(3))
		assert.Equal(t, "fanout/status/run-1", k.Status("run-1"))
		assert.Equal(t, "fanout/report", k.Report())
	})

	t.Run("custom prefix drops trailing slash", func(t *testing.T) {
		k := NewKeys("jobs/nightly/")

		assert.Equal(t, "jobs/nightly/ledger/0", k.Launch(0))
	})
}

func TestLedger_AppendPersistsBeforeVisible(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	keys := NewKeys("")

	l, err := Open(ctx, st, keys, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())

	rec := orchestrator.LaunchRecord{SlotIndex: 1, Handle: "run-b", LaunchedAt: time.Now().UTC()}
	require.NoError(t, l.Append(ctx, rec))

	got, ok := l.Get(1)
	require.True(t, ok)
	assert.Equal(t, "run-b", got.Handle)

	raw, err := st.Load(ctx, "fanout/ledger/1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"launchHandle":"run-b"`)
	assert.Contains(t, string(raw), `"slotIndex":1`)
}

func TestLedger_AppendRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, memory.New(), NewKeys(""), 2)
	require.NoError(t, err)

	require.NoError(t, l.Append(ctx, orchestrator.LaunchRecord{SlotIndex: 0, Handle: "a"}))
	err = l.Append(ctx, orchestrator.LaunchRecord{SlotIndex: 0, Handle: "b"})

	assert.ErrorIs(t, err, ErrAlreadyLaunched)
	got, _ := l.Get(0)
	assert.Equal(t, "a", got.Handle)
}

func TestLedger_SaveFailureLeavesSlotUnlaunched(t *testing.T) {
	ctx := context.Background()
	st := store.NewMockStateStore()
	st.SaveFunc = func(ctx context.Context, key string, value []byte) error {
		return errors.New("disk full")
	}

	l, err := Open(ctx, st, NewKeys(""), 1)
	require.NoError(t, err)

	err = l.Append(ctx, orchestrator.LaunchRecord{SlotIndex: 0, Handle: "a"})

	assert.Error(t, err)
	_, ok := l.Get(0)
	assert.False(t, ok)
}

func TestLedger_ReopenRestoresEntries(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	keys := NewKeys("job")

	first, err := Open(ctx, st, keys, 4)
	require.NoError(t, err)
	require.NoError(t, first.Append(ctx, orchestrator.LaunchRecord{SlotIndex: 0, Handle: "run-0"}))
	require.NoError(t, first.Append(ctx, orchestrator.LaunchRecord{SlotIndex: 1, Handle: "run-1"}))

	reopened, err := Open(ctx, st, keys, 4)
	require.NoError(t, err)

	assert.Equal(t, 2, reopened.Len())
	assert.Equal(t, []string{"run-0", "run-1"}, reopened.Handles())
	_, ok := reopened.Get(2)
	assert.False(t, ok)
}

func TestLedger_OpenPropagatesStoreErrors(t *testing.T) {
	st := store.NewMockStateStore()
	st.LoadFunc = func(ctx context.Context, key string) ([]byte, error) {
		return nil, errors.New("connection reset")
	}

	_, err := Open(context.Background(), st, NewKeys(""), 2)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestLedger_RecordsOrderedBySlot(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, memory.New(), NewKeys(""), 3)
	require.NoError(t, err)

	require.NoError(t, l.Append(ctx, orchestrator.LaunchRecord{SlotIndex: 2, Handle: "c"}))
	require.NoError(t, l.Append(ctx, orchestrator.LaunchRecord{SlotIndex: 0, Handle: "a"}))
	require.NoError(t, l.Append(ctx, orchestrator.LaunchRecord{SlotIndex: 1, Handle: "b"}))

	assert.Equal(t, []string{"a", "b", "c"}, l.Handles())
}
