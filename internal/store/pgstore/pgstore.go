// Package pgstore is the relational, server-based store backend.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/store/sqlstore"
)

// Open connects to Postgres with a lib/pq connection string and bootstraps
// the schema.
func Open(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	logger := ctxlog.FromContext(ctx)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s, err := sqlstore.New(ctx, db, sqlstore.Postgres)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("Postgres store opened.")
	return s, nil
}
