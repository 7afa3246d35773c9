package block

import "github.com/zclconf/go-cty/cty"

// InputConfig takes no attributes; the block yields the current record.
type InputConfig struct{}

func executeInput(env *Env) cty.Value {
	if env.Input == cty.NilVal {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	return env.Input
}
