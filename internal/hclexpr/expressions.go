package hclexpr

import (
	"reflect"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

// TraversalKey generates a stable, canonical string representation for an
// hcl.Traversal, suitable for use as a map key.
func TraversalKey(t hcl.Traversal) string {
	// e.g., ITEMS.items[0]
	return string(hclwrite.TokensForTraversal(t).Bytes())
}

// Expressioner is implemented by decoded HCL block structs that can list the
// expressions they hold, so ParseBlock can hand them to dependency analysis.
type Expressioner interface {
	Expressions() []hcl.Expression
}

// FindUniqueBlock searches a slice of blocks for all blocks of a given name.
// It returns a diagnostic error if more than one block of that name is found.
// If no block is found, it returns nil.
func FindUniqueBlock(blocks hcl.Blocks, name string) (*hcl.Block, hcl.Diagnostics) {
	var found *hcl.Block
	var diags hcl.Diagnostics

	for _, block := range blocks {
		if block.Type == name {
			if found != nil {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Duplicate \"" + name + "\" block",
					Detail:   "Only one \"" + name + "\" block is allowed.",
					Subject:  &block.DefRange,
				})
			}
			found = block
		}
	}

	return found, diags
}

// ParseBlock finds the unique nested block called blockName and decodes it
// into a fresh T, which must be a pointer to a gohcl-tagged struct. A missing
// block yields the zero T and no diagnostics.
func ParseBlock[T Expressioner](blocks hcl.Blocks, blockName string) (T, []hcl.Expression, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	var zero T

	block, blockDiags := FindUniqueBlock(blocks, blockName)
	diags = append(diags, blockDiags...)
	if block == nil || blockDiags.HasErrors() {
		return zero, nil, diags
	}

	val := reflect.New(reflect.TypeOf(zero).Elem())
	content := val.Interface().(T)

	decodeDiags := gohcl.DecodeBody(block.Body, nil, content)
	diags = append(diags, decodeDiags...)
	if decodeDiags.HasErrors() {
		return zero, nil, diags
	}

	return content, content.Expressions(), diags
}

// extractReferencesAndFunctions walks through HCL expressions to find all unique
// variable traversals and function calls. The returned slices are sorted to
// ensure a deterministic order.
func extractReferencesAndFunctions(exprs ...hcl.Expression) ([]hcl.Traversal, []string) {
	traversals := make(map[string]hcl.Traversal)
	functions := make(map[string]struct{})

	for _, expr := range exprs {
		if expr == nil {
			continue
		}

		for _, traversal := range expr.Variables() {
			traversals[TraversalKey(traversal)] = traversal
		}

		// Variables() does not report function calls.
		if syntaxExpr, ok := expr.(hclsyntax.Expression); ok {
			walkForFunctions(syntaxExpr, functions)
		}
	}

	traversalKeys := make([]string, 0, len(traversals))
	for k := range traversals {
		traversalKeys = append(traversalKeys, k)
	}
	sort.Strings(traversalKeys)

	traversalSlice := make([]hcl.Traversal, 0, len(traversals))
	for _, k := range traversalKeys {
		traversalSlice = append(traversalSlice, traversals[k])
	}

	functionSlice := make([]string, 0, len(functions))
	for f := range functions {
		functionSlice = append(functionSlice, f)
	}
	sort.Strings(functionSlice)

	return traversalSlice, functionSlice
}

// walkForFunctions recursively walks the AST, looking only for function calls.
func walkForFunctions(expr hclsyntax.Expression, functions map[string]struct{}) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		functions[e.Name] = struct{}{}
		for _, arg := range e.Args {
			walkForFunctions(arg, functions)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(e.LHS, functions)
		walkForFunctions(e.RHS, functions)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(e.Condition, functions)
		walkForFunctions(e.TrueResult, functions)
		walkForFunctions(e.FalseResult, functions)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(e.Val, functions)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			walkForFunctions(part, functions)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.TemplateJoinExpr:
		walkForFunctions(e.Tuple, functions)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			walkForFunctions(item, functions)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			walkForFunctions(item.KeyExpr, functions)
			walkForFunctions(item.ValueExpr, functions)
		}
	case *hclsyntax.ObjectConsKeyExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.ForExpr:
		walkForFunctions(e.CollExpr, functions)
		walkForFunctions(e.KeyExpr, functions)
		walkForFunctions(e.ValExpr, functions)
		walkForFunctions(e.CondExpr, functions)
	case *hclsyntax.IndexExpr:
		walkForFunctions(e.Collection, functions)
		walkForFunctions(e.Key, functions)
	case *hclsyntax.RelativeTraversalExpr:
		walkForFunctions(e.Source, functions)
	case *hclsyntax.SplatExpr:
		walkForFunctions(e.Source, functions)
		walkForFunctions(e.Each, functions)
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(e.Expression, functions)
	}
}
