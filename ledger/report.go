package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/getpup/fanout-orchestrator"
	"github.com/getpup/fanout-orchestrator/store"
)

// SaveReport persists the final job report.
func SaveReport(ctx context.Context, st store.StateStore, keys Keys, report orchestrator.JobReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := st.Save(ctx, keys.Report(), raw); err != nil {
		return fmt.Errorf("failed to persist report: %w", err)
	}
	return nil
}

// LoadReport returns the persisted job report.
// Returns ErrReportNotFound if the job has not finished yet.
func LoadReport(ctx context.Context, st store.StateStore, keys Keys) (orchestrator.JobReport, error) {
	raw, err := st.Load(ctx, keys.Report())
	if errors.Is(err, store.ErrNotFound) {
		return orchestrator.JobReport{}, ErrReportNotFound
	}
	if err != nil {
		return orchestrator.JobReport{}, fmt.Errorf("failed to load report: %w", err)
	}

	var report orchestrator.JobReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return orchestrator.JobReport{}, fmt.Errorf("failed to decode report: %w", err)
	}
	return report, nil
}
