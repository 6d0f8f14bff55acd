package main

import (
	"context"
	"fmt"

	"github.com/getpup/fanout-orchestrator/store"
	badgerstore "github.com/getpup/fanout-orchestrator/store/badger"
	"github.com/getpup/fanout-orchestrator/store/memory"
	"github.com/getpup/fanout-orchestrator/store/sqlstore"
	"github.com/getpup/pupsourcing/es"
	"github.com/spf13/viper"
)

// openStateStore opens the backend named by state.backend.
// The returned close function must be called once the store is no longer used.
func openStateStore(ctx context.Context, v *viper.Viper, log es.Logger) (store.StateStore, func() error, error) {
	backend := v.GetString(stateBackendConf)

	switch backend {
	case "memory":
		return memory.New(), func() error { return nil }, nil

	case "badger", "":
		st, err := badgerstore.Open(badgerstore.Config{Path: v.GetString(statePathConf)})
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	}

	dialect, err := sqlstore.ParseDialect(backend)
	if err != nil {
		return nil, nil, fmt.Errorf("unknown state backend %q", backend)
	}
	if v.GetString(stateDSNConf) == "" {
		return nil, nil, fmt.Errorf("state backend %s requires --state-dsn", dialect)
	}

	st, db, err := sqlstore.Open(ctx, sqlstore.OpenConfig{
		Dialect: dialect,
		DSN:     v.GetString(stateDSNConf),
		Migrate: v.GetBool(stateMigrateConf),
		Table:   tableConfig(v),
		Logger:  log,
	})
	if err != nil {
		return nil, nil, err
	}
	return st, db.Close, nil
}

func tableConfig(v *viper.Viper) sqlstore.TableConfig {
	cfg := sqlstore.DefaultTableConfig()
	if table := v.GetString(stateTableConf); table != "" {
		cfg.StateTable = table
	}
	return cfg
}
