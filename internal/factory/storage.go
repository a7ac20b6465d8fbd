// Package factory builds the configured infrastructure for the server and CLIs.
package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"lg/nutrition-tracker-api/internal/config"
	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/docstore/memory"
	"lg/nutrition-tracker-api/internal/docstore/postgres"
	"lg/nutrition-tracker-api/internal/docstore/sqlite"
)

// NewStore opens the document store selected by cfg.StoreDriver. The returned
// func releases its connections.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (docstore.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.DBURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("driver", cfg.StoreDriver).Msg("document store ready")
		return postgres.New(pool, log), pool.Close, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		s, err := sqlite.New(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info().Str("driver", cfg.StoreDriver).Str("path", cfg.SQLitePath).Msg("document store ready")
		return s, func() { _ = s.Close() }, nil

	case config.DriverMemory:
		log.Warn().Msg("using in-memory document store; data is lost on exit")
		return memory.New(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER: %s", cfg.StoreDriver)
	}
}
