// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines App, the root container for every block declared in an
// app directory, and the functions that load it.
//
// An app may be split across several files. Loading consolidates them into
// one ordered view so that references resolve across files the same way
// they resolve within one.
package model

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/fsutil"
)

// App is the declared pipeline, blocks in declaration order.
type App struct {
	Blocks []*Block
	Files  []string
	// Sources holds the raw bytes of every loaded file, keyed by path. The
	// app hash and diagnostic snippets are derived from it.
	Sources map[string][]byte
}

// NewApp creates and returns an initialized App.
func NewApp() *App {
	return &App{
		Blocks:  []*Block{},
		Sources: map[string][]byte{},
	}
}

// hclAppFile represents the top-level structure of an app file for decoding.
type hclAppFile struct {
	Blocks []*hclBlock `hcl:"block,block"`
}

// parseFile decodes a parsed file and returns the blocks found within it.
func parseFile(filePath string, file *hcl.File) ([]*Block, error) {
	var parsedFile hclAppFile
	diags := gohcl.DecodeBody(file.Body, nil, &parsedFile)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filePath, diags)
	}

	blocks := make([]*Block, 0, len(parsedFile.Blocks))
	for _, parsedBlock := range parsedFile.Blocks {
		block, blockDiags := NewBlockFromHCL(parsedBlock, filePath)
		if blockDiags.HasErrors() {
			return nil, fmt.Errorf("error parsing block in file %s: %w", filePath, blockDiags)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// LoadApp finds and parses every .hcl file under appPath. appPath may also
// name a single file.
func LoadApp(ctx context.Context, appPath string) (*App, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading app from path.", "path", appPath)

	files, err := fsutil.FindFilesByExtension(appPath, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to find app files in %s: %w", appPath, err)
	}

	app := NewApp()
	if len(files) == 0 {
		logger.Warn("No .hcl app files found in path, returning empty app", "path", appPath)
		return app, nil
	}

	parser := hclparse.NewParser()
	for _, filePath := range files {
		file, diags := parser.ParseHCLFile(filePath)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", filePath, diags)
		}
		if err := app.add(filePath, file); err != nil {
			return nil, err
		}
	}

	logger.Debug("App loaded.", "files", len(app.Files), "blocks", len(app.Blocks))
	return app, nil
}

// ParseSource loads an app from in-memory source, as if it were a single
// file called filename.
func ParseSource(filename string, src []byte) (*App, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	app := NewApp()
	if err := app.add(filename, file); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) add(filePath string, file *hcl.File) error {
	blocks, err := parseFile(filePath, file)
	if err != nil {
		return err
	}
	a.Files = append(a.Files, filePath)
	a.Sources[filePath] = file.Bytes
	a.Blocks = append(a.Blocks, blocks...)
	return nil
}
