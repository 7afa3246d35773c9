package block

import "fmt"

// ExecutionError is a failure of one block invocation: a configuration
// value that does not evaluate, a Code expression that fails, or an
// external call that exhausted its retries. It is never retried itself.
type ExecutionError struct {
	Block   string
	Variant Variant
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("block %s (%s): %v", e.Block, e.Variant, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func execErr(spec *Spec, err error) error {
	return &ExecutionError{Block: spec.Name, Variant: spec.Variant, Err: err}
}

func execErrf(spec *Spec, format string, args ...any) error {
	return execErr(spec, fmt.Errorf(format, args...))
}
