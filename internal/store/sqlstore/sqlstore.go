// Package sqlstore implements store.Store over database/sql. The SQLite and
// Postgres backends share it and differ only in their Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/dataset"
	"github.com/specialistvlad/llmgrid/internal/store"
)

// Dialect captures what differs between SQL engines.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of "?".
	NumberedPlaceholders bool
}

var (
	SQLite   = Dialect{Name: "sqlite"}
	Postgres = Dialect{Name: "postgres", NumberedPlaceholders: true}
)

// Rebind rewrites "?" placeholders for dialects that number them.
func (d Dialect) Rebind(query string) string {
	if !d.NumberedPlaceholders {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// schema is valid for both SQLite and Postgres.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
		dataset_id TEXT NOT NULL,
		hash TEXT NOT NULL,
		created BIGINT NOT NULL,
		record_count INTEGER NOT NULL,
		PRIMARY KEY (dataset_id, hash)
	)`,
	`CREATE TABLE IF NOT EXISTS dataset_records (
		dataset_id TEXT NOT NULL,
		hash TEXT NOT NULL,
		idx INTEGER NOT NULL,
		record TEXT NOT NULL,
		PRIMARY KEY (dataset_id, hash, idx)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_datasets_created ON datasets (dataset_id, created)`,
	`CREATE TABLE IF NOT EXISTS block_cache (
		cache_key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		created BIGINT NOT NULL
	)`,
}

// Store is a store.Store over a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ store.Store = (*Store)(nil)

// New bootstraps the schema on db and returns the store.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, s.wrap("init schema", err)
		}
	}
	ctxlog.FromContext(ctx).Debug("Store schema initialized.", "backend", dialect.Name)
	return s, nil
}

// SQL exposes the underlying handle. Tests use it to reach past the contract.
func (s *Store) SQL() *sql.DB {
	return s.db
}

func (s *Store) wrap(op string, err error) error {
	return &store.Error{Backend: s.dialect.Name, Op: op, Err: err}
}

// RegisterDataset writes the header and every record in one transaction.
func (s *Store) RegisterDataset(ctx context.Context, d *dataset.Dataset) (err error) {
	logger := ctxlog.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("register dataset", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO datasets (dataset_id, hash, created, record_count) VALUES (?, ?, ?, ?)
		 ON CONFLICT (dataset_id, hash) DO NOTHING`),
		d.ID(), d.Hash(), d.Created().UnixMilli(), d.Len())
	if err != nil {
		return s.wrap("register dataset", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		logger.Debug("Dataset version already registered.", "dataset_id", d.ID(), "hash", d.Hash())
		return tx.Commit()
	}

	insert, err := tx.PrepareContext(ctx, s.dialect.Rebind(
		`INSERT INTO dataset_records (dataset_id, hash, idx, record) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return s.wrap("register dataset", err)
	}
	defer insert.Close()

	for i, rec := range d.Raw() {
		if _, err = insert.ExecContext(ctx, d.ID(), d.Hash(), i, string(rec)); err != nil {
			return s.wrap("register dataset", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return s.wrap("register dataset", err)
	}
	logger.Debug("Dataset version registered.", "dataset_id", d.ID(), "hash", d.Hash(), "records", d.Len())
	return nil
}

// ReadDataset implements dataset.Reader.
func (s *Store) ReadDataset(ctx context.Context, id, hash string) (*dataset.Persisted, error) {
	var created int64
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT created FROM datasets WHERE dataset_id = ? AND hash = ?`), id, hash).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap("read dataset", err)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT record FROM dataset_records WHERE dataset_id = ? AND hash = ? ORDER BY idx`), id, hash)
	if err != nil {
		return nil, s.wrap("read dataset", err)
	}
	defer rows.Close()

	p := &dataset.Persisted{ID: id, Hash: hash, Created: time.UnixMilli(created).UTC()}
	for rows.Next() {
		var rec string
		if err := rows.Scan(&rec); err != nil {
			return nil, s.wrap("read dataset", err)
		}
		p.Records = append(p.Records, json.RawMessage(rec))
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("read dataset", err)
	}
	return p, nil
}

// LoadDataset returns the verified version or (nil, nil).
func (s *Store) LoadDataset(ctx context.Context, id, hash string) (*dataset.Dataset, error) {
	return store.Load(ctx, s, id, hash)
}

// LatestHash returns the newest registered hash for id.
func (s *Store) LatestHash(ctx context.Context, id string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT hash FROM datasets WHERE dataset_id = ? ORDER BY created DESC LIMIT 1`), id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", s.wrap("latest hash", err)
	}
	return hash, nil
}

// ListDatasets returns every registered version, newest first.
func (s *Store) ListDatasets(ctx context.Context) ([]store.DatasetVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dataset_id, hash, created, record_count FROM datasets ORDER BY created DESC, dataset_id`)
	if err != nil {
		return nil, s.wrap("list datasets", err)
	}
	defer rows.Close()

	var out []store.DatasetVersion
	for rows.Next() {
		var v store.DatasetVersion
		var created int64
		if err := rows.Scan(&v.ID, &v.Hash, &created, &v.Records); err != nil {
			return nil, s.wrap("list datasets", err)
		}
		v.Created = time.UnixMilli(created).UTC()
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list datasets", err)
	}
	return out, nil
}

// GetCachedBlockResult returns the memoized value for key.
func (s *Store) GetCachedBlockResult(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT value FROM block_cache WHERE cache_key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.wrap("get cached block result", err)
	}
	return json.RawMessage(value), true, nil
}

// PutCachedBlockResult upserts value under key in a single statement.
func (s *Store) PutCachedBlockResult(ctx context.Context, key string, value json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO block_cache (cache_key, value, created) VALUES (?, ?, ?)
		 ON CONFLICT (cache_key) DO UPDATE SET value = excluded.value, created = excluded.created`),
		key, string(value), time.Now().UnixMilli())
	if err != nil {
		return s.wrap("put cached block result", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close %s store: %w", s.dialect.Name, err)
	}
	return nil
}
