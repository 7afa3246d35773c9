package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/llmgrid/internal/config"
	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/store"
	"github.com/specialistvlad/llmgrid/internal/store/badgerstore"
	"github.com/specialistvlad/llmgrid/internal/store/pgstore"
	"github.com/specialistvlad/llmgrid/internal/store/sqlitestore"
)

// openStore opens the backend cfg selects.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	logger := ctxlog.FromContext(ctx)

	if cfg.Store.Driver == config.DriverPostgres {
		logger.Debug("Opening store.", "driver", cfg.Store.Driver)
		s, err := pgstore.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	}

	path, err := cfg.StorePath()
	if err != nil {
		return nil, err
	}
	logger.Debug("Opening store.", "driver", cfg.Store.Driver, "path", path, "in_memory", cfg.Store.InMemory)

	switch cfg.Store.Driver {
	case config.DriverBadger:
		s, err := badgerstore.Open(ctx, badgerstore.Config{Path: path, InMemory: cfg.Store.InMemory})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return s, nil
	case config.DriverSQLite:
		if cfg.Store.InMemory {
			path = sqlitestore.Memory
		}
		s, err := sqlitestore.Open(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
