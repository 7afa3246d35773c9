package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/dataset"
	"github.com/specialistvlad/llmgrid/internal/events"
	"github.com/specialistvlad/llmgrid/internal/model"
	"github.com/specialistvlad/llmgrid/internal/pipeline"
	"github.com/specialistvlad/llmgrid/internal/run"
)

// RunOptions select what to run and how.
type RunOptions struct {
	// AppPath is an .hcl file or a directory of them.
	AppPath string
	// Dataset is a stored dataset reference (id or id@hash) providing the
	// input records.
	Dataset string
	// InputFile is a JSONL file of input records.
	InputFile string
	// Workers overrides the config when positive.
	Workers int
	NoCache bool
}

// Run loads the app, resolves its input records and executes it. The
// result is returned even when the run fails.
func (a *App) Run(ctx context.Context, opts RunOptions) (*run.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "app_path", opts.AppPath)

	loaded, err := model.LoadApp(ctx, opts.AppPath)
	if err != nil {
		return nil, err
	}
	plan, err := pipeline.New(ctx, loaded)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("App validated.", "blocks", len(plan.Specs), "app_hash", plan.Hash)

	inputs, err := a.inputs(ctx, plan, opts)
	if err != nil {
		return nil, err
	}

	s, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}

	publisher, err := a.publisher(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := publisher.Close(); cerr != nil {
			a.logger.Warn("Event publisher did not close cleanly.", "error", cerr)
		}
	}()

	workers := a.project.Run.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}
	runner := run.New(plan,
		run.WithWorkers(workers),
		run.WithStore(s),
		run.WithProviders(a.providers),
		run.WithSearch(a.search),
		run.WithHTTPClient(a.http),
		run.WithRetryPolicy(a.project.Run.Policy()),
		run.WithNoCache(opts.NoCache),
		run.WithPublisher(publisher),
	)
	return runner.Run(ctx, inputs)
}

// inputs returns the records an app with an input block runs over.
func (a *App) inputs(ctx context.Context, plan *pipeline.App, opts RunOptions) ([]any, error) {
	if opts.Dataset != "" && opts.InputFile != "" {
		return nil, errors.New("--dataset and --input are mutually exclusive")
	}
	if plan.Input == nil {
		if opts.Dataset != "" || opts.InputFile != "" {
			a.logger.Warn("App has no input block, ignoring input records.")
		}
		return nil, nil
	}

	var (
		d   *dataset.Dataset
		err error
	)
	switch {
	case opts.Dataset != "":
		d, err = a.LoadDataset(ctx, opts.Dataset)
	case opts.InputFile != "":
		d, err = dataset.FromSource(ctx, plan.Input.Name, opts.InputFile)
	default:
		return nil, fmt.Errorf("app declares input block %s: pass --dataset or --input", plan.Input.Name)
	}
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Input records resolved.", "dataset_id", d.ID(), "hash", d.Hash(), "records", d.Len())
	return d.Value(), nil
}

// publisher dials the configured socket.io sink, or returns a no-op.
func (a *App) publisher(ctx context.Context) (events.Publisher, error) {
	cfg := a.project.Events
	if cfg.SocketIOURL == "" {
		return events.Noop{}, nil
	}
	p, err := events.DialSocketIO(ctx, events.SocketIOConfig{
		URL:            cfg.SocketIOURL,
		Namespace:      cfg.Namespace,
		Event:          cfg.Event,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect event sink: %w", err)
	}
	return p, nil
}
