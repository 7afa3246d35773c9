package block

import (
	"net/http"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/llmgrid/internal/model"
	"github.com/specialistvlad/llmgrid/internal/provider"
	"github.com/specialistvlad/llmgrid/internal/retry"
	"github.com/specialistvlad/llmgrid/internal/runstate"
	"github.com/specialistvlad/llmgrid/internal/search"
	"github.com/zclconf/go-cty/cty"
)

// Env is what a block sees while it executes. Everything in it is read-only
// from the block's point of view.
type Env struct {
	// Frame resolves dependency outputs for the current branch.
	Frame *runstate.Frame
	// Input is the record driving this execution; null when the app has
	// no input block.
	Input cty.Value

	Providers *provider.Registry
	Search    *search.Registry
	HTTP      *http.Client
	// Retry is the run-wide policy that block overrides apply to.
	Retry retry.Policy
	// Datasets holds the records of Data blocks that name a stored
	// dataset, keyed by block name. The run loads them before executing.
	Datasets map[string]cty.Value
	// Branches holds the final value of each branch, in creation order,
	// when a Reduce block executes.
	Branches []cty.Value
}

// Lookup returns the output of block name as seen from the current frame.
func (e *Env) Lookup(name string) (cty.Value, bool) {
	if e.Frame == nil {
		return cty.NilVal, false
	}
	return e.Frame.Lookup(name)
}

// Each returns the innermost branch element.
func (e *Env) Each() (runstate.Each, bool) {
	if e.Frame == nil {
		return runstate.Each{}, false
	}
	return e.Frame.Each()
}

// EvalContext exposes exactly the dependencies of spec, the branch element
// as `each` and the function table.
func (e *Env) EvalContext(spec *Spec) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(spec.DependsOn)+1)
	for _, name := range spec.DependsOn {
		if v, ok := e.Lookup(name); ok {
			vars[name] = v
		} else {
			vars[name] = cty.NullVal(cty.DynamicPseudoType)
		}
	}
	if each, ok := e.Each(); ok {
		vars[model.EachName] = cty.ObjectVal(map[string]cty.Value{
			"index": cty.NumberIntVal(int64(each.Index)),
			"value": each.Value,
		})
	}
	return &hcl.EvalContext{Variables: vars, Functions: functions}
}

// inputs returns the JSON-ready values of spec's dependencies, plus the
// branch element when spec reads it.
func (e *Env) inputs(spec *Spec) (map[string]any, error) {
	out := make(map[string]any, len(spec.DependsOn)+1)
	for _, name := range spec.DependsOn {
		v, _ := e.Lookup(name)
		native, err := FromValue(v)
		if err != nil {
			return nil, err
		}
		out[name] = native
	}
	if spec.UsesEach {
		if each, ok := e.Each(); ok {
			value, err := FromValue(each.Value)
			if err != nil {
				return nil, err
			}
			out[model.EachName] = map[string]any{"index": each.Index, "value": value}
		}
	}
	return out, nil
}
