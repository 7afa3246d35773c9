package run

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/llmgrid/internal/block"
	"github.com/specialistvlad/llmgrid/internal/dataset"
	"github.com/specialistvlad/llmgrid/internal/pipeline"
	"github.com/specialistvlad/llmgrid/internal/provider"
	"github.com/specialistvlad/llmgrid/internal/store"
)

// BlockError is the root cause of a failed run: the first block instance
// that failed on its own rather than being skipped.
type BlockError struct {
	Block   string
	Address string
	// Branch holds the map branch indices, outermost first.
	Branch []int
	// Record is the index of the input record.
	Record int
	Kind   string
	Err    error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("record %d: block %s failed (%s): %v", e.Record, e.Address, e.Kind, e.Err)
}

func (e *BlockError) Unwrap() error { return e.Err }

// KindOf returns a stable name for the class of err.
func KindOf(err error) string {
	var (
		providerErr  *provider.Error
		storeErr     *store.Error
		schemaErr    *dataset.SchemaError
		integrityErr *dataset.IntegrityError
		dagErr       *pipeline.DAGError
		execErr      *block.ExecutionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &providerErr):
		return "provider_" + providerErr.Kind.String()
	case errors.As(err, &storeErr):
		return "store"
	case errors.As(err, &schemaErr):
		return "schema"
	case errors.As(err, &integrityErr):
		return "integrity"
	case errors.As(err, &dagErr):
		return "dag"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &execErr):
		return "block_execution"
	}
	return "internal"
}
