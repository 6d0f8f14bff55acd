// Command migrate-gen generates SQL migration files for the fan-out orchestrator state table.
//
// Usage:
//
//	go run github.com/getpup/fanout-orchestrator/cmd/migrate-gen -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/fanout-orchestrator/cmd/migrate-gen -output migrations
//
// Generate migrations for different database adapters:
//
//	go run github.com/getpup/fanout-orchestrator/cmd/migrate-gen -adapter postgres -output migrations
//	go run github.com/getpup/fanout-orchestrator/cmd/migrate-gen -adapter mysql -output migrations
//	go run github.com/getpup/fanout-orchestrator/cmd/migrate-gen -adapter sqlite -output migrations
//
// Customize names:
//
//	go run github.com/getpup/fanout-orchestrator/cmd/migrate-gen -schema jobs -state-table crawl_state
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/fanout-orchestrator/pkg/migrations"
)

func main() {
	var (
		adapter        = flag.String("adapter", "postgres", "Database adapter: postgres, mysql, or sqlite")
		outputFolder   = flag.String("output", "migrations", "Output folder for migration file")
		outputFilename = flag.String("filename", "", "Output filename (default: timestamp-based)")
		schemaName     = flag.String("schema", "fanout", "Schema name (PostgreSQL), database name (MySQL) or table prefix (SQLite)")
		stateTable     = flag.String("state-table", "state", "Name of the state table")
	)

	flag.Parse()

	config := migrations.DefaultConfig()
	config.OutputFolder = *outputFolder
	config.SchemaName = *schemaName
	config.StateTable = *stateTable

	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	var err error
	switch *adapter {
	case "postgres":
		err = migrations.GeneratePostgres(&config)
	case "mysql":
		err = migrations.GenerateMySQL(&config)
	case "sqlite":
		err = migrations.GenerateSQLite(&config)
	default:
		fmt.Fprintf(os.Stderr, "Error: unsupported adapter '%s'. Supported adapters are: postgres, mysql, sqlite\n", *adapter)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
	fmt.Printf("Configure the state store with table %q\n", config.TableName(*adapter))
}
