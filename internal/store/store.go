// Package store persists ledger sessions as whole JSON documents, either in a
// data directory or in a Postgres table.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"boardbank/internal/config"
	"boardbank/internal/db"
	"boardbank/internal/ledger"
)

// Open builds the store selected by cfg. The returned close func releases
// any connection pool and is never nil.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (ledger.Store, func(), error) {
	switch cfg.Kind {
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, func() {}, err
		}
		s, err := NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		logger.Info("using postgres store")
		return s, pool.Close, nil
	case config.StoreFile:
		s, err := NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, func() {}, err
		}
		logger.Info("using file store", "path", s.Path())
		return s, func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}
