package block

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// CodeConfig holds one expression. It is evaluated with only the block's
// dependencies, `each` and the function table in scope.
//
//	block "code" "TOTAL" {
//	  expression = length([for r in ROWS : r if r.amount > 0])
//	}
type CodeConfig struct {
	Expression hcl.Expression `hcl:"expression"`
}

func executeCode(env *Env, spec *Spec) (cty.Value, error) {
	cfg := spec.Config.(*CodeConfig)
	v, diags := cfg.Expression.Value(env.EvalContext(spec))
	if diags.HasErrors() {
		return cty.NilVal, execErr(spec, diags)
	}
	if !v.IsWhollyKnown() {
		return cty.NilVal, execErrf(spec, "expression did not produce a known value")
	}
	return v, nil
}

// codeMaterial identifies a Code block by its source text.
func codeMaterial(spec *Spec) map[string]any {
	cfg := spec.Config.(*CodeConfig)
	return map[string]any{"expression": spec.text(cfg.Expression)}
}
