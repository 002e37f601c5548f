package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Compose-time errors: surfaced to the caller immediately
	ErrSchemaMismatch    = errors.New("schema mismatch")
	ErrInvalidReference  = errors.New("invalid reference")
	ErrUnknownColumn     = fmt.Errorf("%w: unknown column", ErrInvalidReference)
	ErrMalformedDocument = errors.New("malformed workflow document")
	ErrCycle             = errors.New("cyclic group reference")

	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrGroupNotFound    = fmt.Errorf("%w: group", ErrNotFound)
	ErrWorkflowNotFound = fmt.Errorf("%w: workflow", ErrNotFound)

	// Execution-time errors: captured per-action, never fatal
	ErrActionRuntime = errors.New("action runtime error")
)

// Error constructors with context
func NewSchemaMismatchError(file string, detail string) error {
	return fmt.Errorf("%w in file %s: %s", ErrSchemaMismatch, file, detail)
}

func NewUnknownColumnError(column string, context string) error {
	return fmt.Errorf("%w %q in %s", ErrUnknownColumn, column, context)
}

func NewInvalidReferenceError(kind string, id string) error {
	return fmt.Errorf("%w: %s %q not found in workflow", ErrInvalidReference, kind, id)
}

func NewMalformedDocumentError(detail string) error {
	return fmt.Errorf("%w: %s", ErrMalformedDocument, detail)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

// Error checking helpers
func IsSchemaMismatch(err error) bool {
	return errors.Is(err, ErrSchemaMismatch)
}

func IsInvalidReference(err error) bool {
	return errors.Is(err, ErrInvalidReference)
}

func IsMalformedDocument(err error) bool {
	return errors.Is(err, ErrMalformedDocument)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
