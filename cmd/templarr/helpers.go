package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"templarr/internal/apply"
	"templarr/internal/config"
	"templarr/internal/engine"
	"templarr/internal/remote"
	"templarr/internal/storage"
)

// initStorage opens the database and runs pending migrations.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = config.DefaultDatabasePath()
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// initEngine wires the reconcile engine over a store and the live remote
// client factory.
func initEngine(store *storage.SQLiteStorage) *engine.ReconcileEngine {
	executor := apply.NewExecutor(store)
	return engine.New(store, remote.Factory, executor)
}

// storeOps is the subset of storage operations the small CRUD commands need.
type storeOps = *storage.SQLiteStorage

// withStore opens the store, runs fn, and closes it.
func withStore(cmd *cobra.Command, fn func(storeOps) error) error {
	store, err := initStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()
	return fn(store)
}
