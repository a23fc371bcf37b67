package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/CTAG07/tplsource/pkg/manifest"
)

// openStore opens the manifest database and prepares a Store on it. The
// returned func closes both.
func openStore(dataSource string, logger *slog.Logger) (*manifest.Store, func(), error) {
	db, err := sql.Open(sqlDriver, dataSource)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = manifest.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to setup manifest schema: %w", err)
	}
	store, err := manifest.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to prepare manifest store: %w", err)
	}
	store.SetLogger(logger)

	return store, func() {
		store.Close()
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}, nil
}
