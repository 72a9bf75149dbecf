package domain

import (
	"errors"
	"fmt"
)

// ErrClientNotFound is returned by lookups that require an existing record.
var ErrClientNotFound = errors.New("client not found")

// ValidationError reports a required field that is empty.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s is required", e.Field)
}

// MalformedRowError reports a CSV data row that cannot be reconciled with the header.
type MalformedRowError struct {
	Line   int
	Want   int
	Got    int
	Reason string
}

func (e *MalformedRowError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("csv line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("csv line %d: expected %d fields, got %d", e.Line, e.Want, e.Got)
}

// CorruptStoreError reports a persisted blob that failed to deserialize.
type CorruptStoreError struct {
	Key string
	Err error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt store data under %q: %v", e.Key, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

// PersistenceError wraps a failure of the key-value adapter.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
