package block

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// MapConfig opens a branch per element of `from`, or `repeat` branches that
// each see the whole `from` value.
//
//	block "map" "ITEMS" {
//	  from            = INPUT.items
//	  max_concurrency = 4
//	}
//
// Blocks declared after a map and before its matching reduce run once per
// branch and read the element as `each.value`.
type MapConfig struct {
	From           hcl.Expression `hcl:"from"`
	RepeatExpr     hcl.Expression `hcl:"repeat,optional"`
	MaxConcurrency hcl.Expression `hcl:"max_concurrency,optional"`

	// Repeat is zero unless the block repeats its input.
	Repeat int
	// Concurrency bounds the branches in flight; zero leaves it to the run.
	Concurrency int
}

func (c *MapConfig) validate(spec *Spec) hcl.Diagnostics {
	var diags hcl.Diagnostics
	if isSet(c.RepeatExpr) {
		n, d := staticInt(c.RepeatExpr, "repeat")
		diags = append(diags, d...)
		if !d.HasErrors() && n < 1 {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid repeat value",
				Detail:   "The \"repeat\" attribute must be at least 1.",
				Subject:  c.RepeatExpr.Range().Ptr(),
			})
		}
		c.Repeat = n
	}
	if isSet(c.MaxConcurrency) {
		n, d := staticInt(c.MaxConcurrency, "max_concurrency")
		diags = append(diags, d...)
		if !d.HasErrors() && n < 1 {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid max_concurrency value",
				Detail:   "The \"max_concurrency\" attribute must be at least 1.",
				Subject:  c.MaxConcurrency.Range().Ptr(),
			})
		}
		c.Concurrency = n
	}
	return diags
}

// executeMap returns the branch elements as a tuple.
func executeMap(env *Env, spec *Spec) (cty.Value, error) {
	cfg := spec.Config.(*MapConfig)
	from, diags := cfg.From.Value(env.EvalContext(spec))
	if diags.HasErrors() {
		return cty.NilVal, execErr(spec, diags)
	}
	if !from.IsWhollyKnown() {
		return cty.NilVal, execErrf(spec, "from did not produce a known value")
	}

	if cfg.Repeat > 0 {
		elems := make([]cty.Value, cfg.Repeat)
		for i := range elems {
			elems[i] = from
		}
		return cty.TupleVal(elems), nil
	}

	if from.IsNull() {
		return cty.NilVal, execErrf(spec, "from is null")
	}
	ty := from.Type()
	if !ty.IsListType() && !ty.IsTupleType() && !ty.IsSetType() {
		return cty.NilVal, execErrf(spec, "from must be a list, got %s", ty.FriendlyName())
	}
	elems := make([]cty.Value, 0, from.LengthInt())
	it := from.ElementIterator()
	for it.Next() {
		_, v := it.Element()
		elems = append(elems, v)
	}
	return tupleVal(elems), nil
}

// ReduceConfig takes no attributes. The block closes the innermost open
// map and yields the final value of every branch in creation order.
type ReduceConfig struct{}

func executeReduce(env *Env) cty.Value {
	return tupleVal(env.Branches)
}
