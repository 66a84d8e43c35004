package normalize

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ClassifiedError is returned for every record that cannot be normalized.
// The concrete type decides where the record is routed:
//   - *IdentityError: no usable _id, logged with the raw document
//   - *ShapeError: structurally invalid, logged against the _id
//   - *MissingFieldError: mandatory field empty, raw document quarantined
type ClassifiedError interface {
	error
	classified()
}

// IdentityError reports a record without an extractable ObjectID _id.
type IdentityError struct {
	Raw bson.D
}

func (e *IdentityError) Error() string {
	return "no ObjectID _id"
}

// ShapeError reports a field holding a representation the normalizer does
// not know how to coerce.
type ShapeError struct {
	ID    bson.ObjectID
	Field string
	Cause error
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Cause)
}

func (e *ShapeError) Unwrap() error { return e.Cause }

// MissingFieldError reports a mandatory field that is absent, null or empty.
type MissingFieldError struct {
	ID    bson.ObjectID
	Field string
	Raw   bson.D
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: expected a non-empty string", e.Field)
}

func (*IdentityError) classified()     {}
func (*ShapeError) classified()        {}
func (*MissingFieldError) classified() {}

// ErrUnexpectedKind is the cause of a ShapeError raised by a type mismatch.
var ErrUnexpectedKind = errors.New("unexpected value kind")

func unexpected(id bson.ObjectID, field string, k Kind) *ShapeError {
	return &ShapeError{ID: id, Field: field, Cause: fmt.Errorf("%w %s", ErrUnexpectedKind, k)}
}

// Classify extracts the ClassifiedError from err, if any.
func Classify(err error) (ClassifiedError, bool) {
	var ce ClassifiedError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
