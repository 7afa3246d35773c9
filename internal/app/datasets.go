package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/dataset"
	"github.com/specialistvlad/llmgrid/internal/store"
)

// Init creates the project store so later commands find it.
func (a *App) Init(ctx context.Context) error {
	if _, err := a.Store(ctx); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("📦 Project initialized", "store", a.project.Store.Driver)
	return nil
}

// RegisterDataset ingests the JSONL file at path as a new version of id.
func (a *App) RegisterDataset(ctx context.Context, id, path string) (*dataset.Dataset, error) {
	s, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	d, err := dataset.FromSource(ctx, id, path)
	if err != nil {
		return nil, err
	}
	if err := s.RegisterDataset(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to register dataset %q: %w", id, err)
	}
	ctxlog.FromContext(ctx).Debug("Dataset registered.", "dataset_id", id, "hash", d.Hash(), "records", d.Len())
	return d, nil
}

// ListDatasets returns every registered version, newest first.
func (a *App) ListDatasets(ctx context.Context) ([]store.DatasetVersion, error) {
	s, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	return s.ListDatasets(ctx)
}

// LoadDataset resolves a reference of the form id or id@hash. A bare id
// means the latest version.
func (a *App) LoadDataset(ctx context.Context, ref string) (*dataset.Dataset, error) {
	s, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	id, hash, _ := strings.Cut(ref, "@")

	var d *dataset.Dataset
	if hash != "" {
		d, err = s.LoadDataset(ctx, id, hash)
	} else {
		d, err = store.LoadLatest(ctx, s, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %q: %w", ref, err)
	}
	if d == nil {
		return nil, fmt.Errorf("dataset %q is not registered", ref)
	}
	return d, nil
}
