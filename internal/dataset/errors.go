package dataset

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by FromStore when no version is persisted under
// the requested (id, hash) pair.
var ErrNotFound = errors.New("dataset not found")

// SchemaError reports a record that is not a JSON object, or whose key set
// differs from the first record's.
type SchemaError struct {
	DatasetID string
	// Line is the 1-based line of the JSONL source, or the 1-based record
	// position when the records did not come from a file.
	Line   int
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("dataset %q: line %d: %s", e.DatasetID, e.Line, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return e.Err }

// IntegrityError reports that persisted records no longer hash to the
// version they were stored under.
type IntegrityError struct {
	DatasetID string
	Want      string
	Got       string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("dataset %q: integrity check failed: stored as %s but records hash to %s", e.DatasetID, e.Want, e.Got)
}
