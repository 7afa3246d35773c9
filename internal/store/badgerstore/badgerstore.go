// Package badgerstore is an embedded key-value store backend on BadgerDB.
//
// Key layout:
//
//	ds/<id>/<hash>/meta          {"created":ms,"records":n}
//	ds/<id>/<hash>/rec/<%010d>   canonical record bytes
//	latest/<id>                  newest hash
//	cache/<key>                  memoized block result
package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/dataset"
	"github.com/specialistvlad/llmgrid/internal/store"
)

const backendName = "badger"

// Config configures the database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
}

// badgerLogger routes badger's printf-style logging into slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Store is a store.Store on a badger database.
type Store struct {
	db *badger.DB
}

var _ store.Store = (*Store)(nil)

// Open opens the database described by cfg.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	logger := ctxlog.FromContext(ctx)

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger store: path is required for a persistent database")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger.With("component", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	logger.Debug("Badger store opened.", "path", cfg.Path, "in_memory", cfg.InMemory)
	return &Store{db: db}, nil
}

func wrap(op string, err error) error {
	return &store.Error{Backend: backendName, Op: op, Err: err}
}

func versionPrefix(id, hash string) []byte {
	return []byte(fmt.Sprintf("ds/%s/%s/", id, hash))
}

func metaKey(id, hash string) []byte {
	return append(versionPrefix(id, hash), "meta"...)
}

func recordKey(id, hash string, idx int) []byte {
	return append(versionPrefix(id, hash), fmt.Sprintf("rec/%010d", idx)...)
}

func latestKey(id string) []byte {
	return []byte("latest/" + id)
}

func cacheKey(key string) []byte {
	return []byte("cache/" + key)
}

type meta struct {
	Created int64 `json:"created"`
	Records int   `json:"records"`
}

// RegisterDataset writes the version in a single transaction.
func (s *Store) RegisterDataset(ctx context.Context, d *dataset.Dataset) error {
	logger := ctxlog.FromContext(ctx)

	m, err := json.Marshal(meta{Created: d.Created().UnixMilli(), Records: d.Len()})
	if err != nil {
		return wrap("register dataset", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(metaKey(d.ID(), d.Hash())); err == nil {
			logger.Debug("Dataset version already registered.", "dataset_id", d.ID(), "hash", d.Hash())
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		for i, rec := range d.Raw() {
			if err := txn.Set(recordKey(d.ID(), d.Hash(), i), rec); err != nil {
				return err
			}
		}
		if err := txn.Set(metaKey(d.ID(), d.Hash()), m); err != nil {
			return err
		}
		newer, err := isNewerThanLatest(txn, d)
		if err != nil || !newer {
			return err
		}
		return txn.Set(latestKey(d.ID()), []byte(d.Hash()))
	})
	if err != nil {
		return wrap("register dataset", err)
	}
	return nil
}

// isNewerThanLatest reports whether d was created no earlier than the
// version currently recorded as latest.
func isNewerThanLatest(txn *badger.Txn, d *dataset.Dataset) (bool, error) {
	item, err := txn.Get(latestKey(d.ID()))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	current, err := item.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	metaItem, err := txn.Get(metaKey(d.ID(), string(current)))
	if err != nil {
		return false, err
	}
	raw, err := metaItem.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	var m meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return false, err
	}
	return d.Created().UnixMilli() >= m.Created, nil
}

// ReadDataset implements dataset.Reader.
func (s *Store) ReadDataset(ctx context.Context, id, hash string) (*dataset.Persisted, error) {
	var p *dataset.Persisted
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(id, hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var m meta
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}

		p = &dataset.Persisted{ID: id, Hash: hash, Created: time.UnixMilli(m.Created).UTC()}
		prefix := append(versionPrefix(id, hash), "rec/"...)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rec, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			p.Records = append(p.Records, json.RawMessage(rec))
		}
		return nil
	})
	if err != nil {
		return nil, wrap("read dataset", err)
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
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(latestKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		hash = string(v)
		return err
	})
	if err != nil {
		return "", wrap("latest hash", err)
	}
	return hash, nil
}

// ListDatasets returns every registered version, newest first.
func (s *Store) ListDatasets(ctx context.Context) ([]store.DatasetVersion, error) {
	var out []store.DatasetVersion
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte("ds/")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if !bytes.HasSuffix(key, []byte("/meta")) {
				continue
			}
			parts := strings.Split(string(key), "/")
			if len(parts) != 4 {
				continue
			}
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var m meta
			if err := json.Unmarshal(raw, &m); err != nil {
				return err
			}
			out = append(out, store.DatasetVersion{
				ID: parts[1], Hash: parts[2], Created: time.UnixMilli(m.Created).UTC(), Records: m.Records,
			})
		}
		return nil
	})
	if err != nil {
		return nil, wrap("list datasets", err)
	}
	slices.SortStableFunc(out, func(a, b store.DatasetVersion) int {
		return b.Created.Compare(a.Created)
	})
	return out, nil
}

// GetCachedBlockResult returns the memoized value for key.
func (s *Store) GetCachedBlockResult(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("get cached block result", err)
	}
	return json.RawMessage(value), true, nil
}

// PutCachedBlockResult stores value under key in its own transaction.
func (s *Store) PutCachedBlockResult(ctx context.Context, key string, value json.RawMessage) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(key), value)
	})
	if err != nil {
		return wrap("put cached block result", err)
	}
	return nil
}

// DB exposes the underlying database. Tests use it to reach past the
// contract.
func (s *Store) DB() *badger.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
