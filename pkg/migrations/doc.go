// Package migrations provides SQL migration generation for the fan-out orchestrator's
// state table. The table holds the launch ledger, the run status table and the final
// job report of every job, keyed by job prefix, on PostgreSQL, MySQL/MariaDB and SQLite.
package migrations
