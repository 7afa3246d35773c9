// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// depends_on declares ordering between blocks that share no data. It must be
// a list literal of bare block names.
package model

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// parseDependsOn finds the "depends_on" attribute and returns its raw
// expression together with the block names it lists.
func parseDependsOn(attrs hcl.Attributes) (hcl.Expression, []string, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	dependsOnAttr, exists := attrs["depends_on"]
	if !exists {
		return nil, nil, diags
	}
	expr := dependsOnAttr.Expr

	tuple, isTuple := expr.(*hclsyntax.TupleConsExpr)
	if !isTuple {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid depends_on value",
			Detail:   "The 'depends_on' attribute must be a list of block references.",
			Subject:  expr.Range().Ptr(),
		})
		return expr, nil, diags
	}

	var names []string
	seen := make(map[string]struct{})
	for _, item := range tuple.Exprs {
		traversal, travDiags := hcl.AbsTraversalForExpr(item)
		if travDiags.HasErrors() || len(traversal) != 1 {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid depends_on entry",
				Detail:   "Each depends_on entry must be a bare block name, such as INPUT.",
				Subject:  item.Range().Ptr(),
			})
			continue
		}
		name := traversal.RootName()
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return expr, names, diags
}
