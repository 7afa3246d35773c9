// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model turns app files into an ordered list of block declarations.
//
// An app is one or more .hcl files holding `block "<variant>" "<NAME>"`
// blocks. Declaration order matters: files are read in lexical path order
// and blocks in source order, and a block may only depend on blocks declared
// before it.
//
// The model keeps attribute values as raw hcl.Expression. Evaluation is
// deferred to execution, because most values (a prompt, a Map's `from`) are
// computed from the outputs of earlier blocks. What the model does decide
// up front is which blocks each declaration references, both explicitly
// through `depends_on` and implicitly through the root names of its
// expressions.
package model
