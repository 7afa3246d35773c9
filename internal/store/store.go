// Package store defines the persistence contract shared by every backend:
// dataset versions addressed by (id, hash) and memoized block results
// addressed by cache key.
//
// Backends live in sub-packages (sqlitestore, pgstore, badgerstore) and are
// interchangeable. Writes are atomic: a reader never observes a partially
// written dataset version or cache value.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/llmgrid/internal/dataset"
)

// Store is the contract the engine consumes.
type Store interface {
	dataset.Reader

	// RegisterDataset persists a version. Registering a version that already
	// exists is a no-op.
	RegisterDataset(ctx context.Context, d *dataset.Dataset) error
	// LoadDataset returns the verified version, or (nil, nil) when absent.
	LoadDataset(ctx context.Context, id, hash string) (*dataset.Dataset, error)
	// LatestHash returns the hash of the newest version of id by creation
	// time, or "" when the dataset has never been registered.
	LatestHash(ctx context.Context, id string) (string, error)
	// ListDatasets returns every registered version, newest first.
	ListDatasets(ctx context.Context) ([]DatasetVersion, error)

	// GetCachedBlockResult returns the value memoized under key.
	GetCachedBlockResult(ctx context.Context, key string) (json.RawMessage, bool, error)
	// PutCachedBlockResult memoizes value under key. It is safe to call
	// concurrently; the last write for a key wins.
	PutCachedBlockResult(ctx context.Context, key string, value json.RawMessage) error

	Close() error
}

// DatasetVersion describes one registered version.
type DatasetVersion struct {
	ID      string
	Hash    string
	Created time.Time
	Records int
}

// Error wraps a backend I/O failure. The engine treats it as recoverable:
// read failures degrade to cache misses and write failures are reported in
// run metadata.
type Error struct {
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s store: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Load verifies a version through dataset.FromStore and maps "not found" to
// (nil, nil). Backends implement LoadDataset with it.
func Load(ctx context.Context, r dataset.Reader, id, hash string) (*dataset.Dataset, error) {
	d, err := dataset.FromStore(ctx, r, id, hash)
	if errors.Is(err, dataset.ErrNotFound) {
		return nil, nil
	}
	return d, err
}

// LoadLatest loads the newest version of id, or (nil, nil) if none exists.
func LoadLatest(ctx context.Context, s Store, id string) (*dataset.Dataset, error) {
	hash, err := s.LatestHash(ctx, id)
	if err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, nil
	}
	return s.LoadDataset(ctx, id, hash)
}
