// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// The retry block overrides the run's retry policy for one block. It only
// matters for variants that reach an external system.
package model

import (
	"github.com/hashicorp/hcl/v2"
)

// Retry defines the retry behavior for a block.
type Retry struct {
	MaxAttempts     hcl.Expression `hcl:"max_attempts,optional"`
	InitialInterval hcl.Expression `hcl:"initial_interval,optional"`
	MaxInterval     hcl.Expression `hcl:"max_interval,optional"`
}

// Expressions returns a slice of all HCL expressions defined in the Retry block.
func (r *Retry) Expressions() []hcl.Expression {
	if r == nil {
		return nil
	}
	return []hcl.Expression{r.MaxAttempts, r.InitialInterval, r.MaxInterval}
}
