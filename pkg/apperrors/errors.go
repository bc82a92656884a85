package apperrors

import (
	"errors"
	"fmt"
)

// Fatal run errors. Per-record rejections never abort a run; these do.
// Already-committed batches persist when they occur, so a failed run is
// always safe to retry.
var (
	ErrStoreUnavailable  = errors.New("relational store unavailable")
	ErrCommitFailed      = errors.New("batch commit failed")
	ErrConsistencyPolicy = errors.New("dimension attribute conflict with fail policy in effect")
	ErrCountMismatch     = errors.New("post-load row counts do not match committed counts")
)

// RejectionKind classifies why a single record was excluded from the
// fact set.
type RejectionKind string

const (
	// RejectionValidation marks a malformed or out-of-range field.
	RejectionValidation RejectionKind = "validation_error"
	// RejectionDuplicateFactKey marks a transaction identifier already
	// seen earlier in the run; the later record loses.
	RejectionDuplicateFactKey RejectionKind = "duplicate_fact_key"
	// RejectionMissingDimension marks a record whose customer or item
	// reference is absent from the extracted dimension sets.
	RejectionMissingDimension RejectionKind = "missing_dimension_reference"
	// RejectionConsistency marks conflicting dimension attribute values
	// for the same natural key.
	RejectionConsistency RejectionKind = "consistency_violation"
)

// RecordError is a per-record rejection: the record is excluded from the
// fact set, the run continues, and the rejection surfaces in the run
// report rather than being silently dropped.
type RecordError struct {
	Kind   RejectionKind
	Key    string // offending natural key (transaction, customer or item key)
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s: key %s: %s", e.Kind, e.Key, e.Reason)
}

// NewRecordError builds a rejection for the given natural key.
func NewRecordError(kind RejectionKind, key, format string, args ...any) *RecordError {
	return &RecordError{Kind: kind, Key: key, Reason: fmt.Sprintf(format, args...)}
}
