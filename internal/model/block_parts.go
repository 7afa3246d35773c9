// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Table-driven parsing of the attributes and nested blocks every variant
// accepts. Adding a common attribute or block means adding a table entry;
// NewBlockFromHCL does not change.
package model

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/llmgrid/internal/hclexpr"
)

// blockParser parses one kind of nested block and sets it on a Block.
type blockParser struct {
	Parse  func(blocks hcl.Blocks) (result interface{}, exprs []hcl.Expression, diags hcl.Diagnostics)
	Setter func(block *Block, result interface{})
}

// makeBlockParser builds a blockParser entry for the nested block type T.
func makeBlockParser[T hclexpr.Expressioner](blockName string, setter func(b *Block, val T)) blockParser {
	return blockParser{
		Parse: func(blocks hcl.Blocks) (interface{}, []hcl.Expression, hcl.Diagnostics) {
			result, exprs, diags := hclexpr.ParseBlock[T](blocks, blockName)
			if exprs == nil {
				// A nil typed pointer would not compare equal to nil once
				// boxed in the interface.
				return nil, nil, diags
			}
			return result, exprs, diags
		},
		Setter: func(b *Block, v interface{}) {
			if r, ok := v.(T); ok {
				setter(b, r)
			}
		},
	}
}

// blockParsers is the table that drives the nested block parsing logic.
var blockParsers = map[string]blockParser{
	"retry": makeBlockParser("retry", func(b *Block, v *Retry) { b.Retry = v }),
}

// attributeParser parses one simple attribute and sets it on a Block.
type attributeParser struct {
	Name   string
	Setter func(block *Block, expr hcl.Expression)
}

// attributeParsers is the table that drives the simple attribute parsing logic.
var attributeParsers = []attributeParser{
	{"cache", func(b *Block, e hcl.Expression) { b.Cache = e }},
	{"timeout", func(b *Block, e hcl.Expression) { b.Timeout = e }},
}

// blockBodySchema lists what NewBlockFromHCL consumes; the rest of the body
// is left to the variant.
var blockBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "depends_on"}, {Name: "cache"}, {Name: "timeout"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "retry"},
	},
}

var nameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

func validName(name string) bool {
	return nameRegex.MatchString(name)
}

// sortedAttributeNames orders attributes by source position.
func sortedAttributeNames(attrs hcl.Attributes) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return attrs[names[i]].Range.Start.Byte < attrs[names[j]].Range.Start.Byte
	})
	return names
}

// variantAttributes returns the attributes the common schema did not
// consume. Nested blocks are only allowed where the common schema names
// them.
func variantAttributes(body, remain hcl.Body) (hcl.Attributes, hcl.Diagnostics) {
	syntaxBody, ok := body.(*hclsyntax.Body)
	if !ok {
		return remain.JustAttributes()
	}

	var diags hcl.Diagnostics
	common := make(map[string]struct{}, len(blockBodySchema.Attributes)+len(blockBodySchema.Blocks))
	for _, a := range blockBodySchema.Attributes {
		common[a.Name] = struct{}{}
	}
	for _, b := range blockBodySchema.Blocks {
		common[b.Type] = struct{}{}
	}

	for _, nested := range syntaxBody.Blocks {
		if _, ok := common[nested.Type]; ok {
			continue
		}
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Unsupported block type",
			Detail:   fmt.Sprintf("Blocks of type %q are not expected here.", nested.Type),
			Subject:  nested.TypeRange.Ptr(),
		})
	}

	attrs := make(hcl.Attributes)
	for name, attr := range syntaxBody.Attributes {
		if _, ok := common[name]; ok {
			continue
		}
		attrs[name] = attr.AsHCLAttribute()
	}
	return attrs, diags
}
