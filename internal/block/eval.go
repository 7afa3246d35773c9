package block

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// evaluator evaluates one spec's attributes in an EvalContext and
// accumulates diagnostics, so a resolve function reads top to bottom and
// checks for errors once.
type evaluator struct {
	ctx   *hcl.EvalContext
	diags hcl.Diagnostics
}

func newEvaluator(env *Env, spec *Spec) *evaluator {
	return &evaluator{ctx: env.EvalContext(spec)}
}

func (ev *evaluator) fail(expr hcl.Expression, name, detail string) {
	ev.diags = append(ev.diags, &hcl.Diagnostic{
		Severity:    hcl.DiagError,
		Summary:     "Invalid " + name + " value",
		Detail:      detail,
		Subject:     expr.Range().Ptr(),
		Expression:  expr,
		EvalContext: ev.ctx,
	})
}

func (ev *evaluator) value(expr hcl.Expression, name string, ty cty.Type) (cty.Value, bool) {
	if !isSet(expr) {
		return cty.NilVal, false
	}
	v, diags := expr.Value(ev.ctx)
	ev.diags = append(ev.diags, diags...)
	if diags.HasErrors() {
		return cty.NilVal, false
	}
	if v.IsNull() {
		return cty.NilVal, false
	}
	v, err := convert.Convert(v, ty)
	if err != nil {
		ev.fail(expr, name, fmt.Sprintf("The %q attribute must be a %s: %s.", name, ty.FriendlyName(), err))
		return cty.NilVal, false
	}
	if !v.IsWhollyKnown() {
		ev.fail(expr, name, fmt.Sprintf("The %q attribute did not produce a known value.", name))
		return cty.NilVal, false
	}
	return v, true
}

func (ev *evaluator) string(expr hcl.Expression, name string) string {
	v, ok := ev.value(expr, name, cty.String)
	if !ok {
		return ""
	}
	return v.AsString()
}

func (ev *evaluator) requiredString(expr hcl.Expression, name string) string {
	s := ev.string(expr, name)
	if s == "" && !ev.diags.HasErrors() {
		ev.fail(expr, name, fmt.Sprintf("The %q attribute must not be empty.", name))
	}
	return s
}

func (ev *evaluator) int(expr hcl.Expression, name string) (int, bool) {
	v, ok := ev.value(expr, name, cty.Number)
	if !ok {
		return 0, false
	}
	var n int
	if err := gocty.FromCtyValue(v, &n); err != nil {
		ev.fail(expr, name, fmt.Sprintf("The %q attribute must be a whole number.", name))
		return 0, false
	}
	return n, true
}

func (ev *evaluator) float32(expr hcl.Expression, name string) *float32 {
	v, ok := ev.value(expr, name, cty.Number)
	if !ok {
		return nil
	}
	var f float32
	if err := gocty.FromCtyValue(v, &f); err != nil {
		ev.fail(expr, name, fmt.Sprintf("The %q attribute must be a number: %s.", name, err))
		return nil
	}
	return &f
}

func (ev *evaluator) strings(expr hcl.Expression, name string) []string {
	v, ok := ev.value(expr, name, cty.List(cty.String))
	if !ok {
		return nil
	}
	var out []string
	if err := gocty.FromCtyValue(v, &out); err != nil {
		ev.fail(expr, name, fmt.Sprintf("The %q attribute must be a list of strings: %s.", name, err))
		return nil
	}
	return out
}

func (ev *evaluator) stringMap(expr hcl.Expression, name string) map[string]string {
	v, ok := ev.value(expr, name, cty.Map(cty.String))
	if !ok {
		return nil
	}
	var out map[string]string
	if err := gocty.FromCtyValue(v, &out); err != nil {
		ev.fail(expr, name, fmt.Sprintf("The %q attribute must be a map of strings: %s.", name, err))
		return nil
	}
	return out
}

func (ev *evaluator) err() error {
	if ev.diags.HasErrors() {
		return ev.diags
	}
	return nil
}
