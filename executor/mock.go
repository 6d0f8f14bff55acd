package executor

import (
	"context"
	"sync"
	"time"

	"github.com/getpup/fanout-orchestrator"
	"github.com/google/uuid"
)

// MockPlatform is a mock implementation of Platform and CollectionStore for testing.
type MockPlatform struct {
	mu sync.Mutex

	ResolveTargetFunc func(ctx context.Context, target orchestrator.Target) (string, error)
	SubmitLaunchFunc  func(ctx context.Context, call SubmitCall) (Launch, error)
	GetStatusFunc     func(ctx context.Context, handle string) (orchestrator.RunStatus, error)
	CancelFunc        func(ctx context.Context, handle string) (orchestrator.RunState, error)
	GetOrCreateFunc   func(ctx context.Context, id string) (Collection, error)
	GetInfoFunc       func(ctx context.Context, id string) (Collection, error)

	ResolveTargetCalls []orchestrator.Target
	SubmitCalls        []SubmitCall
	GetStatusCalls     []string
	CancelCalls        []string
	GetOrCreateCalls   []string
	GetInfoCalls       []string
}

// SubmitCall records the parameters of a single SubmitLaunch call.
type SubmitCall struct {
	Kind     orchestrator.TargetKind
	TargetID string
	Payload  map[string]any
	Options  orchestrator.LaunchOptions
}

// Compile-time checks that MockPlatform implements Platform and CollectionStore.
var (
	_ Platform        = (*MockPlatform)(nil)
	_ CollectionStore = (*MockPlatform)(nil)
)

// NewMockPlatform creates a new MockPlatform with an empty call history.
func NewMockPlatform() *MockPlatform {
	return &MockPlatform{}
}

// ResolveTarget implements the Platform interface.
// Without a hook it echoes the target id.
func (m *MockPlatform) ResolveTarget(ctx context.Context, target orchestrator.Target) (string, error) {
	m.mu.Lock()
	m.ResolveTargetCalls = append(m.ResolveTargetCalls, target)
	m.mu.Unlock()

	if m.ResolveTargetFunc != nil {
		return m.ResolveTargetFunc(ctx, target)
	}
	return target.ID, nil
}

// SubmitLaunch implements the Platform interface.
// Without a hook it returns a fresh random handle.
func (m *MockPlatform) SubmitLaunch(ctx context.Context, kind orchestrator.TargetKind, targetID string, payload map[string]any, options orchestrator.LaunchOptions) (Launch, error) {
	call := SubmitCall{Kind: kind, TargetID: targetID, Payload: payload, Options: options}

	m.mu.Lock()
	m.SubmitCalls = append(m.SubmitCalls, call)
	m.mu.Unlock()

	if m.SubmitLaunchFunc != nil {
		return m.SubmitLaunchFunc(ctx, call)
	}
	return Launch{Handle: uuid.NewString(), StartedAt: time.Now()}, nil
}

// GetStatus implements the Platform interface.
// Without a hook every run has succeeded with output collection "out-<handle>".
func (m *MockPlatform) GetStatus(ctx context.Context, handle string) (orchestrator.RunStatus, error) {
	m.mu.Lock()
	m.GetStatusCalls = append(m.GetStatusCalls, handle)
	m.mu.Unlock()

	if m.GetStatusFunc != nil {
		return m.GetStatusFunc(ctx, handle)
	}

	now := time.Now()
	return orchestrator.RunStatus{
		Handle:             handle,
		State:              orchestrator.RunStateSucceeded,
		FinishedAt:         &now,
		OutputCollectionID: "out-" + handle,
	}, nil
}

// Cancel implements the Platform interface.
// Without a hook the run reports ABORTED.
func (m *MockPlatform) Cancel(ctx context.Context, handle string) (orchestrator.RunState, error) {
	m.mu.Lock()
	m.CancelCalls = append(m.CancelCalls, handle)
	m.mu.Unlock()

	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, handle)
	}
	return orchestrator.RunStateAborted, nil
}

// GetOrCreate implements the CollectionStore interface.
func (m *MockPlatform) GetOrCreate(ctx context.Context, id string) (Collection, error) {
	m.mu.Lock()
	m.GetOrCreateCalls = append(m.GetOrCreateCalls, id)
	m.mu.Unlock()

	if m.GetOrCreateFunc != nil {
		return m.GetOrCreateFunc(ctx, id)
	}
	return Collection{ID: id}, nil
}

// GetInfo implements the CollectionStore interface.
func (m *MockPlatform) GetInfo(ctx context.Context, id string) (Collection, error) {
	m.mu.Lock()
	m.GetInfoCalls = append(m.GetInfoCalls, id)
	m.mu.Unlock()

	if m.GetInfoFunc != nil {
		return m.GetInfoFunc(ctx, id)
	}
	return Collection{ID: id}, nil
}

// SubmitCount returns the number of SubmitLaunch calls so far.
func (m *MockPlatform) SubmitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SubmitCalls)
}

// CancelCount returns how many times Cancel was called for handle.
func (m *MockPlatform) CancelCount(handle string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, h := range m.CancelCalls {
		if h == handle {
			n++
		}
	}
	return n
}

// Submits returns a copy of the recorded SubmitLaunch calls.
func (m *MockPlatform) Submits() []SubmitCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SubmitCall(nil), m.SubmitCalls...)
}

// Cancels returns a copy of the recorded Cancel handles.
func (m *MockPlatform) Cancels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CancelCalls...)
}

// Reset clears the call history.
func (m *MockPlatform) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResolveTargetCalls = nil
	m.SubmitCalls = nil
	m.GetStatusCalls = nil
	m.CancelCalls = nil
	m.GetOrCreateCalls = nil
	m.GetInfoCalls = nil
}
