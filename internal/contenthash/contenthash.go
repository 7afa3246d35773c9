// Package contenthash is the single canonical content-hash primitive. It is
// used in two roles that never share a digest space: dataset identity (plain
// BLAKE3) and block cache keys (BLAKE3 keyed with a fixed namespace key).
package contenthash

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"lukechampine.com/blake3"
)

// Size is the digest length in bytes. Hex digests are twice as long.
const Size = 32

// cacheNamespace keys the hasher used for block cache keys, so a cache key
// can never equal a dataset hash over the same bytes.
var cacheNamespace = blake3.Sum256([]byte("llmgrid block cache key v1"))

// Hasher accumulates content into one digest. It is a fold: callers feed
// parts in order and read the digest once at the end.
type Hasher struct {
	h *blake3.Hasher
}

// NewDatasetHasher returns a hasher in the dataset namespace.
func NewDatasetHasher() *Hasher {
	return &Hasher{h: blake3.New(Size, nil)}
}

// NewCacheKeyHasher returns a hasher in the block cache namespace.
func NewCacheKeyHasher() *Hasher {
	return &Hasher{h: blake3.New(Size, cacheNamespace[:])}
}

// Write feeds p into the digest.
func (h *Hasher) Write(p []byte) {
	// blake3.Hasher.Write never returns an error.
	_, _ = h.h.Write(p)
}

// Sum returns the lowercase hex digest of everything written so far.
func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// Dataset folds the canonical bytes of each record, in order, into one
// dataset hash.
func Dataset(records [][]byte) string {
	h := NewDatasetHasher()
	for _, r := range records {
		h.Write(r)
	}
	return h.Sum()
}

// CacheKey hashes v's canonical JSON form in the block cache namespace.
func CacheKey(v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize cache key material: %w", err)
	}
	h := NewCacheKeyHasher()
	h.Write(b)
	return h.Sum(), nil
}

// Canonical serializes v as compact JSON. Map keys are sorted by
// encoding/json, HTML characters are left unescaped and json.Number values
// keep their original text, so the same value always yields the same bytes.
func Canonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Decode parses canonical JSON back into a generic value, keeping numbers as
// json.Number so that re-encoding is lossless.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}
