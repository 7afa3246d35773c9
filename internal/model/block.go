// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines Block, one `block "<variant>" "<NAME>"` declaration.
//
// The attributes every variant understands (depends_on, cache, timeout and
// the retry block) are parsed here. Everything else in the body belongs to
// the variant and is kept as a body of raw attributes for the block package
// to decode against the variant's own schema.
package model

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/llmgrid/internal/hclexpr"
)

// EachName is the reserved root through which a block inside a Map reads
// its branch element (each.index, each.value).
const EachName = "each"

// Block is the format-agnostic representation of a `block` declaration.
type Block struct {
	Variant       string
	Name          string
	FSInformation *FSInfo
	DefRange      hcl.Range

	// Explicit dependencies listed in depends_on, in source order.
	DependsOn []string
	// Implicit dependencies: root names referenced by any expression.
	References []string

	Cache   hcl.Expression
	Timeout hcl.Expression
	Retry   *Retry

	// Body holds the variant attributes; Attributes is the same set, parsed.
	Body       hcl.Body
	Attributes hcl.Attributes

	Expressions *hclexpr.Container
}

// NewBlock creates a new, empty Block.
func NewBlock() *Block {
	return &Block{
		Expressions: hclexpr.NewContainer(),
	}
}

// hclBlock represents a single `block` for initial decoding from HCL.
type hclBlock struct {
	Variant  string    `hcl:"variant,label"`
	Name     string    `hcl:"name,label"`
	Body     hcl.Body  `hcl:",remain"`
	DefRange hcl.Range `hcl:",def_range"`
}

// NewBlockFromHCL creates a new Block from a parsed HCL block.
func NewBlockFromHCL(parsed *hclBlock, filePath string) (*Block, hcl.Diagnostics) {
	block := NewBlock()
	block.Variant = parsed.Variant
	block.Name = parsed.Name
	block.DefRange = parsed.DefRange
	block.FSInformation = NewFSInfo(filePath)

	var allDiags hcl.Diagnostics

	if !validName(parsed.Name) {
		allDiags = append(allDiags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid block name",
			Detail:   "Block names must start with a letter or underscore and contain only letters, digits, underscores and dashes.",
			Subject:  parsed.DefRange.Ptr(),
		})
	}
	if parsed.Name == EachName {
		allDiags = append(allDiags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Reserved block name",
			Detail:   "The name \"each\" is reserved for the branch element inside a map.",
			Subject:  parsed.DefRange.Ptr(),
		})
	}

	content, remain, contentDiags := parsed.Body.PartialContent(blockBodySchema)
	allDiags = append(allDiags, contentDiags...)
	if contentDiags.HasErrors() {
		return nil, allDiags
	}

	// --- Common attributes ---
	for _, parser := range attributeParsers {
		if attr, exists := content.Attributes[parser.Name]; exists {
			parser.Setter(block, attr.Expr)
			block.Expressions.Add(attr.Expr)
		}
	}

	depsExpr, names, depDiags := parseDependsOn(content.Attributes)
	allDiags = append(allDiags, depDiags...)
	block.Expressions.Add(depsExpr)
	block.DependsOn = names

	// --- Nested blocks ---
	for _, parser := range blockParsers {
		result, blockExprs, blockDiags := parser.Parse(content.Blocks)
		allDiags = append(allDiags, blockDiags...)
		block.Expressions.Add(blockExprs...)
		if result != nil {
			parser.Setter(block, result)
		}
	}

	// --- Variant attributes ---
	attrs, attrDiags := variantAttributes(parsed.Body, remain)
	allDiags = append(allDiags, attrDiags...)
	block.Body = remain
	block.Attributes = attrs
	for _, name := range sortedAttributeNames(attrs) {
		block.Expressions.Add(attrs[name].Expr)
	}

	block.References = block.Expressions.RootNames(EachName)

	if allDiags.HasErrors() {
		return nil, allDiags
	}
	return block, allDiags
}
