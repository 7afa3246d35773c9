package app

import (
	"encoding/json"
	"io"

	"github.com/specialistvlad/llmgrid/internal/provider"
	"github.com/specialistvlad/llmgrid/internal/run"
)

type resultDoc struct {
	RunID       string           `json:"run_id"`
	AppHash     string           `json:"app_hash"`
	Error       string           `json:"error,omitempty"`
	Outputs     map[string][]any `json:"outputs"`
	Blocks      []blockDoc       `json:"blocks"`
	StoreErrors []string         `json:"store_errors,omitempty"`
}

type blockDoc struct {
	Block      string          `json:"block"`
	Address    string          `json:"address"`
	Input      int             `json:"input"`
	Status     string          `json:"status"`
	Cache      string          `json:"cache"`
	LatencyMS  int64           `json:"latency_ms"`
	Retries    int             `json:"retries,omitempty"`
	Usage      *provider.Usage `json:"usage,omitempty"`
	Error      string          `json:"error,omitempty"`
	StoreError string          `json:"store_error,omitempty"`
}

// WriteResult writes res as indented JSON. runErr, when set, is included
// as the top-level error.
func WriteResult(w io.Writer, res *run.Result, runErr error) error {
	doc := resultDoc{
		RunID:       res.RunID,
		AppHash:     res.AppHash,
		Outputs:     res.Outputs,
		Blocks:      make([]blockDoc, 0, len(res.Blocks)),
		StoreErrors: res.StoreErrors,
	}
	if runErr != nil {
		doc.Error = runErr.Error()
	}
	for _, m := range res.Blocks {
		doc.Blocks = append(doc.Blocks, blockDoc{
			Block:      m.Block,
			Address:    m.Address,
			Input:      m.Input,
			Status:     m.Status,
			Cache:      m.Cache,
			LatencyMS:  m.Latency.Milliseconds(),
			Retries:    m.Retries,
			Usage:      m.Usage,
			Error:      m.Error,
			StoreError: m.StoreError,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
