package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the public operations. Callers match them with
// errors.Is after unwrapping.
var (
	// ErrDuplicateExam is returned when registering an exam whose id
	// already exists.
	ErrDuplicateExam = errors.New("exam already exists")

	// ErrNotFound is returned when an exam, document, or question id
	// does not refer to a live record.
	ErrNotFound = errors.New("not found")

	// ErrExhaustedPool is returned by selection when every candidate is
	// excluded or figure-flagged. Recovery (for example resetting the
	// serve history) is the caller's decision.
	ErrExhaustedPool = errors.New("no eligible questions")

	// ErrGenerationQuality is returned when the validation collaborator
	// rejected every generation attempt.
	ErrGenerationQuality = errors.New("validator rejected all generation attempts")

	// ErrIndexInconsistency signals a dangling vector or orphaned
	// question record. It is always a bug: it is logged and surfaced,
	// never silently repaired.
	ErrIndexInconsistency = errors.New("index inconsistency")
)

// ExtractionError reports a per-document extraction failure. One failing
// document never aborts ingestion of its batch siblings.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
