package block

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// isSet reports whether an optional attribute was given a non-null value.
// gohcl fills missing optional expressions with a static null.
func isSet(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	if len(expr.Variables()) > 0 {
		return true
	}
	v, diags := expr.Value(nil)
	return diags.HasErrors() || !v.IsNull()
}

// staticValue evaluates an attribute that must not depend on other blocks.
func staticValue(expr hcl.Expression, name string, ty cty.Type) (cty.Value, hcl.Diagnostics) {
	if len(expr.Variables()) > 0 {
		return cty.NilVal, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid " + name + " value",
			Detail:   fmt.Sprintf("The %q attribute must be a constant; it cannot reference other blocks.", name),
			Subject:  expr.Range().Ptr(),
		}}
	}
	v, diags := expr.Value(&hcl.EvalContext{Functions: functions})
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	v, err := convert.Convert(v, ty)
	if err != nil || v.IsNull() {
		return cty.NilVal, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid " + name + " value",
			Detail:   fmt.Sprintf("The %q attribute must be a %s.", name, ty.FriendlyName()),
			Subject:  expr.Range().Ptr(),
		}}
	}
	return v, nil
}

func staticString(expr hcl.Expression, name string) (string, hcl.Diagnostics) {
	v, diags := staticValue(expr, name, cty.String)
	if diags.HasErrors() {
		return "", diags
	}
	return v.AsString(), nil
}

func staticBool(expr hcl.Expression, name string) (bool, hcl.Diagnostics) {
	v, diags := staticValue(expr, name, cty.Bool)
	if diags.HasErrors() {
		return false, diags
	}
	return v.True(), nil
}

func staticInt(expr hcl.Expression, name string) (int, hcl.Diagnostics) {
	v, diags := staticValue(expr, name, cty.Number)
	if diags.HasErrors() {
		return 0, diags
	}
	var n int
	if err := gocty.FromCtyValue(v, &n); err != nil {
		return 0, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid " + name + " value",
			Detail:   fmt.Sprintf("The %q attribute must be a whole number.", name),
			Subject:  expr.Range().Ptr(),
		}}
	}
	return n, nil
}

func staticDuration(expr hcl.Expression, name string) (time.Duration, hcl.Diagnostics) {
	s, diags := staticString(expr, name)
	if diags.HasErrors() {
		return 0, diags
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid " + name + " value",
			Detail:   fmt.Sprintf("The %q attribute must be a duration such as \"30s\".", name),
			Subject:  expr.Range().Ptr(),
		}}
	}
	return d, nil
}
