package run

import (
	"slices"
	"sort"
	"time"

	"github.com/specialistvlad/llmgrid/internal/provider"
)

// Cache outcomes reported in BlockMeta.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
	CacheSkip = "skip"
)

// Block instance statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Result is what a run produced, including partial output of a failed run.
type Result struct {
	RunID   string
	AppHash string
	// Outputs maps each block to one value per input record. Values of
	// blocks inside a map are arrays over branches, nested once per map.
	Outputs map[string][]any
	Blocks  []BlockMeta
	// StoreErrors lists cache writes that failed.
	StoreErrors []string
}

// Output returns the JSON-ready values of block name, one per record.
func (r *Result) Output(name string) []any {
	return r.Outputs[name]
}

// BlockMeta describes one block instance.
type BlockMeta struct {
	Block   string
	Address string
	// Input is the index of the record the instance ran for.
	Input      int
	Status     string
	Cache      string
	Latency    time.Duration
	Retries    int
	Usage      *provider.Usage
	Error      string
	StoreError string

	order  int
	branch []int
}

// sortBlocks orders metadata by record, then declaration, then branch.
func sortBlocks(metas []BlockMeta) {
	sort.SliceStable(metas, func(i, j int) bool {
		a, b := metas[i], metas[j]
		if a.Input != b.Input {
			return a.Input < b.Input
		}
		if a.order != b.order {
			return a.order < b.order
		}
		return slices.Compare(a.branch, b.branch) < 0
	})
}
