package features

import "fmt"

// InvalidRecordError reports a raw record that cannot be encoded because a
// required field is missing or malformed.
type InvalidRecordError struct {
	Field  string
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record: %s %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &InvalidRecordError{Field: field, Reason: reason}
}
