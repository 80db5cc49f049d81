package pages

import (
	"errors"
	"fmt"
)

// ErrInvalidDocument is matched by every *InvalidDocumentError via errors.Is.
var ErrInvalidDocument = errors.New("invalid document")

// InvalidDocumentError reports a source file that cannot be parsed or has no pages.
type InvalidDocumentError struct {
	Name   string
	Reason string
	Err    error
}

func (e *InvalidDocumentError) Error() string {
	msg := fmt.Sprintf("invalid document %q: %s", e.Name, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidDocumentError) Unwrap() error { return e.Err }

func (e *InvalidDocumentError) Is(target error) bool { return target == ErrInvalidDocument }

// InvariantViolation is a caller bug: a reorder with a mismatched id set or a
// selection referencing an id that is not in the registry.
type InvariantViolation struct {
	Op     string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Detail)
}

// EncodingError reports a rasterization or page embedding failure during a merge.
type EncodingError struct {
	PageID string
	Stage  string
	Err    error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding page %s (%s): %v", e.PageID, e.Stage, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// IsInvalidDocument reports whether err is or wraps an InvalidDocumentError.
func IsInvalidDocument(err error) bool {
	return errors.Is(err, ErrInvalidDocument)
}

// IsInvariantViolation reports whether err is or wraps an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}

// IsEncodingError reports whether err is or wraps an EncodingError.
func IsEncodingError(err error) bool {
	var ee *EncodingError
	return errors.As(err, &ee)
}
