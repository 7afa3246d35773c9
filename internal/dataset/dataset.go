// Package dataset implements immutable, schema-uniform, content-addressed
// collections of JSON records.
//
// A dataset version is identified by (id, hash). The hash is a single BLAKE3
// fold over the canonical serialization of every record in order, so it is
// both the version tag and the integrity check applied whenever a version is
// read back from a store.
package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/specialistvlad/llmgrid/internal/contenthash"
	"github.com/specialistvlad/llmgrid/internal/ctxlog"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 64 << 20

// Dataset is an immutable version of a record collection.
type Dataset struct {
	id      string
	hash    string
	created time.Time
	keys    []string
	raw     []json.RawMessage
}

// Persisted is the form in which a store hands a dataset version back.
type Persisted struct {
	ID      string
	Hash    string
	Created time.Time
	Records []json.RawMessage
}

// Reader is implemented by stores that can return persisted versions. It
// returns (nil, nil) when the version is absent.
type Reader interface {
	ReadDataset(ctx context.Context, id, hash string) (*Persisted, error)
}

// builder accumulates records while enforcing the key invariant and folding
// the hash.
type builder struct {
	id     string
	keys   []string
	hasher *contenthash.Hasher
	raw    []json.RawMessage
}

func newBuilder(id string) *builder {
	return &builder{id: id, hasher: contenthash.NewDatasetHasher()}
}

func (b *builder) add(line int, v any) error {
	obj, ok := v.(map[string]any)
	if !ok {
		return &SchemaError{DatasetID: b.id, Line: line, Reason: "not a JSON object, only JSON objects are expected at each line"}
	}

	recordKeys := make([]string, 0, len(obj))
	for k := range obj {
		recordKeys = append(recordKeys, k)
	}
	slices.Sort(recordKeys)

	if b.keys == nil {
		b.keys = recordKeys
	} else if !slices.Equal(b.keys, recordKeys) {
		return &SchemaError{DatasetID: b.id, Line: line, Reason: "JSON object has different keys from previous lines"}
	}

	data, err := contenthash.Canonical(obj)
	if err != nil {
		return &SchemaError{DatasetID: b.id, Line: line, Reason: "record cannot be serialized", Err: err}
	}
	b.hasher.Write(data)
	b.raw = append(b.raw, data)
	return nil
}

func (b *builder) finish(created time.Time) *Dataset {
	return &Dataset{
		id:      b.id,
		hash:    b.hasher.Sum(),
		created: created,
		keys:    b.keys,
		raw:     b.raw,
	}
}

// FromSource reads a line-delimited JSON file. A leading "~" in path is
// expanded to the user's home directory and blank lines are ignored.
func FromSource(ctx context.Context, id, path string) (*Dataset, error) {
	logger := ctxlog.FromContext(ctx)

	expanded, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Opening dataset source.", "dataset_id", id, "path", expanded)

	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset source %s: %w", expanded, err)
	}
	defer f.Close()

	return FromReader(ctx, id, f)
}

// FromReader is FromSource over an arbitrary JSONL stream.
func FromReader(ctx context.Context, id string, r io.Reader) (*Dataset, error) {
	logger := ctxlog.FromContext(ctx)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	b := newBuilder(id)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		v, err := contenthash.Decode([]byte(text))
		if err != nil {
			return nil, &SchemaError{DatasetID: id, Line: line, Reason: "invalid JSON", Err: err}
		}
		if err := b.add(line, v); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset source: %w", err)
	}

	d := b.finish(now())
	logger.Debug("Dataset built from source.", "dataset_id", id, "hash", d.hash, "records", d.Len(), "keys", d.keys)
	return d, nil
}

// FromValues builds a dataset from already-decoded values, such as the
// inline records of a data block. Line numbers in errors are 1-based
// positions.
func FromValues(id string, values []any) (*Dataset, error) {
	b := newBuilder(id)
	for i, v := range values {
		if err := b.add(i+1, v); err != nil {
			return nil, err
		}
	}
	return b.finish(now()), nil
}

// FromStore reconstructs a version from a store and re-derives its hash. A
// hash that disagrees with the requested one is an *IntegrityError.
func FromStore(ctx context.Context, r Reader, id, hash string) (*Dataset, error) {
	logger := ctxlog.FromContext(ctx)

	p, err := r.ReadDataset(ctx, id, hash)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s@%s", ErrNotFound, id, hash)
	}

	b := newBuilder(id)
	for i, rec := range p.Records {
		v, err := contenthash.Decode(rec)
		if err != nil {
			return nil, &SchemaError{DatasetID: id, Line: i + 1, Reason: "stored record is not valid JSON", Err: err}
		}
		if err := b.add(i+1, v); err != nil {
			return nil, err
		}
	}

	d := b.finish(p.Created)
	if d.hash != hash {
		return nil, &IntegrityError{DatasetID: id, Want: hash, Got: d.hash}
	}
	logger.Debug("Dataset verified from store.", "dataset_id", id, "hash", hash, "records", d.Len())
	return d, nil
}

// ID returns the dataset identifier.
func (d *Dataset) ID() string { return d.id }

// Hash returns the content hash identifying this version.
func (d *Dataset) Hash() string { return d.hash }

// Created returns the creation time, truncated to milliseconds.
func (d *Dataset) Created() time.Time { return d.created }

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.raw) }

// Keys returns the sorted record key set. It is nil for an empty dataset.
func (d *Dataset) Keys() []string { return slices.Clone(d.keys) }

// Raw returns the canonical bytes of each record, exactly as hashed.
func (d *Dataset) Raw() []json.RawMessage { return slices.Clone(d.raw) }

// Records decodes fresh copies of every record.
func (d *Dataset) Records() []map[string]any {
	out := make([]map[string]any, 0, len(d.raw))
	for _, rec := range d.raw {
		v, err := contenthash.Decode(rec)
		if err != nil {
			// raw only ever holds bytes this package produced.
			panic(fmt.Sprintf("dataset: corrupt canonical record: %v", err))
		}
		out = append(out, v.(map[string]any))
	}
	return out
}

// Value returns the records as a single JSON array value.
func (d *Dataset) Value() []any {
	records := d.Records()
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand %q: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
