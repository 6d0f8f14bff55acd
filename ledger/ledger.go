package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/getpup/fanout-orchestrator"
	"github.com/getpup/fanout-orchestrator/store"
)

// Ledger is the append-only, durably persisted record of which slots have
// been launched. A slot present in the ledger is never launched again.
type Ledger struct {
	mu      sync.RWMutex
	store   store.StateStore
	keys    Keys
	records map[int]orchestrator.LaunchRecord // slotIndex -> record
}

// Open loads the ledger entries of slots [0, slotCount) from the store.
// Missing entries are simply not yet launched.
func Open(ctx context.Context, st store.StateStore, keys Keys, slotCount int) (*Ledger, error) {
	l := &Ledger{
		store:   st,
		keys:    keys,
		records: make(map[int]orchestrator.LaunchRecord),
	}

	for i := 0; i < slotCount; i++ {
		raw, err := st.Load(ctx, keys.Launch(i))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load ledger entry %d: %w", i, err)
		}

		var rec orchestrator.LaunchRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode ledger entry %d: %w", i, err)
		}
		l.records[i] = rec
	}

	return l, nil
}

// Get returns the record of a slot, if the slot was launched.
func (l *Ledger) Get(slotIndex int) (orchestrator.LaunchRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[slotIndex]
	return rec, ok
}

// Append persists rec and then adds it to the ledger.
// Returns ErrAlreadyLaunched if the slot already has an entry.
func (l *Ledger) Append(ctx context.Context, rec orchestrator.LaunchRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[rec.SlotIndex]; ok {
		return fmt.Errorf("%w: slot %d", ErrAlreadyLaunched, rec.SlotIndex)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode ledger entry: %w", err)
	}
	if err := l.store.Save(ctx, l.keys.Launch(rec.SlotIndex), raw); err != nil {
		return fmt.Errorf("failed to persist ledger entry %d: %w", rec.SlotIndex, err)
	}

	l.records[rec.SlotIndex] = rec
	return nil
}

// Records returns all entries ordered by slot index.
func (l *Ledger) Records() []orchestrator.LaunchRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]orchestrator.LaunchRecord, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SlotIndex < out[j].SlotIndex
	})
	return out
}

// Handles returns the launch handles ordered by slot index.
func (l *Ledger) Handles() []string {
	records := l.Records()
	handles := make([]string, len(records))
	for i, rec := range records {
		handles[i] = rec.Handle
	}
	return handles
}

// Len returns the number of launched slots.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
