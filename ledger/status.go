package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/getpup/fanout-orchestrator"
	"github.com/getpup/fanout-orchestrator/store"
)

// StatusTable holds the last observed status per launch handle.
// It is shared between pollers and the failure coordinator, and every
// accepted change is persisted before it becomes visible.
type StatusTable struct {
	mu       sync.RWMutex
	store    store.StateStore
	keys     Keys
	statuses map[string]orchestrator.RunStatus // handle -> status
}

// OpenStatusTable loads persisted statuses for the given handles.
func OpenStatusTable(ctx context.Context, st store.StateStore, keys Keys, handles []string) (*StatusTable, error) {
	t := &StatusTable{
		store:    st,
		keys:     keys,
		statuses: make(map[string]orchestrator.RunStatus),
	}

	for _, h := range handles {
		raw, err := st.Load(ctx, keys.Status(h))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load status of %s: %w", h, err)
		}

		var status orchestrator.RunStatus
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, fmt.Errorf("failed to decode status of %s: %w", h, err)
		}
		t.statuses[h] = status
	}

	return t, nil
}

// Get returns the last observed status of handle.
func (t *StatusTable) Get(handle string) (orchestrator.RunStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.statuses[handle]
	return s, ok
}

// IsTerminal reports whether handle was observed in a terminal state.
func (t *StatusTable) IsTerminal(handle string) bool {
	s, ok := t.Get(handle)
	return ok && s.State.IsTerminal()
}

// Record stores status unless the handle is already terminal.
// It reports whether status was accepted. An identical status is accepted
// without being persisted again.
func (t *StatusTable) Record(ctx context.Context, status orchestrator.RunStatus) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.statuses[status.Handle]
	if ok && prev.State.IsTerminal() {
		return false, nil
	}
	if !status.State.IsTerminal() {
		status.FinishedAt = nil
	}
	if ok && sameStatus(prev, status) {
		return true, nil
	}

	raw, err := json.Marshal(status)
	if err != nil {
		return false, fmt.Errorf("failed to encode status: %w", err)
	}
	if err := t.store.Save(ctx, t.keys.Status(status.Handle), raw); err != nil {
		return false, fmt.Errorf("failed to persist status of %s: %w", status.Handle, err)
	}

	t.statuses[status.Handle] = status
	return true, nil
}

// Snapshot returns a copy of the table.
func (t *StatusTable) Snapshot() map[string]orchestrator.RunStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.statuses)
}

func sameStatus(a, b orchestrator.RunStatus) bool {
	return a.State == b.State && a.OutputCollectionID == b.OutputCollectionID
}
