//go:build integration

package integration_test

import (
	"testing"
)

// TestSetupHelpers validates that the integration test helper functions work correctly.
// This test requires a PostgreSQL database to be available via DATABASE_URL.
func TestSetupHelpers(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	setupTables(t, db)

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM fanout_state").Scan(&count); err != nil {
		t.Fatalf("failed to query state table: %v", err)
	}

	if _, err := db.Exec("INSERT INTO fanout_state (state_key, state_value) VALUES ('sample', '\\x00')"); err != nil {
		t.Fatalf("failed to insert sample row: %v", err)
	}

	cleanupTables(t, db)

	if err := db.QueryRow("SELECT COUNT(*) FROM fanout_state").Scan(&count); err != nil {
		t.Fatalf("failed to query state table after cleanup: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 rows in state table after cleanup, got %d", count)
	}

	teardownTables(t, db)

	// Querying the dropped table must fail
	if err := db.QueryRow("SELECT COUNT(*) FROM fanout_state").Scan(&count); err == nil {
		t.Error("expected error querying dropped state table, but got none")
	}
}
