package domain

import (
	"fmt"
)

// ValidationError reports a payload that cannot become a transaction.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// NotFoundError reports a transaction that does not exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("transaction %q not found", e.ID)
}

// StorageError wraps a primary store failure. It is always propagated.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a mirror that cannot operate because it is not
// fully configured.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "mirror not configured: " + e.Reason
}

// MirrorError wraps a failure of the mirror store. It never reaches callers
// of the orchestrator.
type MirrorError struct {
	Op  string
	Err error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("mirror %s: %v", e.Op, e.Err)
}

func (e *MirrorError) Unwrap() error {
	return e.Err
}
