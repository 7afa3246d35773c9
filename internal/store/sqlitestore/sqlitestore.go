// Package sqlitestore is the embedded, file-based store backend.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/store/sqlstore"
)

// Memory opens a private in-memory database.
const Memory = ":memory:"

// Open opens (creating if needed) the SQLite database at path and
// bootstraps the schema.
func Open(ctx context.Context, path string) (*sqlstore.Store, error) {
	logger := ctxlog.FromContext(ctx)

	dsn := path
	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create store directory for %s: %w", path, err)
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers anyway, and an in-memory database exists
	// only on the connection that created it.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s, err := sqlstore.New(ctx, db, sqlstore.SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("SQLite store opened.", "path", path)
	return s, nil
}
