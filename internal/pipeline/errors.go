package pipeline

import "fmt"

// DAGError reports an app whose blocks do not form a valid plan.
type DAGError struct {
	Block  string
	Reason string
}

func (e *DAGError) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("invalid app: %s", e.Reason)
	}
	return fmt.Sprintf("invalid app: block %s: %s", e.Block, e.Reason)
}

func dagErrorf(block, format string, args ...any) *DAGError {
	return &DAGError{Block: block, Reason: fmt.Sprintf(format, args...)}
}
