package domain

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// nullState distinguishes the three states of a Nullable.
// The zero value is nullAbsent so that an unset field stays absent.
type nullState uint8

const (
	nullAbsent nullState = iota
	nullNull
	nullPresent
)

// Nullable is a tri-state optional value: Absent (never set), Null
// (explicitly cleared) or Present. Struct fields of this type must carry
// `bson:",omitempty"` so that Absent is omitted from the encoded document
// instead of being written as null.
type Nullable[T any] struct {
	value T
	state nullState
}

// Some returns a present Nullable holding v.
func Some[T any](v T) Nullable[T] {
	return Nullable[T]{value: v, state: nullPresent}
}

// Null returns an explicitly null Nullable.
func Null[T any]() Nullable[T] {
	return Nullable[T]{state: nullNull}
}

// Absent returns a Nullable that was never set. Same as the zero value.
func Absent[T any]() Nullable[T] {
	return Nullable[T]{}
}

func (n Nullable[T]) IsAbsent() bool  { return n.state == nullAbsent }
func (n Nullable[T]) IsNull() bool    { return n.state == nullNull }
func (n Nullable[T]) IsPresent() bool { return n.state == nullPresent }

// Get returns the value and whether it is present.
func (n Nullable[T]) Get() (T, bool) {
	return n.value, n.state == nullPresent
}

// IsZero reports whether the field is absent. The BSON encoder consults it
// for omitempty.
func (n Nullable[T]) IsZero() bool {
	return n.state == nullAbsent
}

func (n Nullable[T]) String() string {
	switch n.state {
	case nullPresent:
		return fmt.Sprint(n.value)
	case nullNull:
		return "null"
	default:
		return "absent"
	}
}

// MarshalBSONValue encodes Present as the value and Null as BSON null.
// Absent is encoded as BSON undefined, which only happens when a field
// is missing its omitempty tag.
func (n Nullable[T]) MarshalBSONValue() (byte, []byte, error) {
	switch n.state {
	case nullPresent:
		t, data, err := bson.MarshalValue(n.value)
		return byte(t), data, err
	case nullNull:
		return byte(bson.TypeNull), nil, nil
	default:
		return byte(bson.TypeUndefined), nil, nil
	}
}

// UnmarshalBSONValue decodes BSON null (and undefined) as Null and any other
// value as Present. Keys missing from the document never reach this method,
// so they stay Absent.
func (n *Nullable[T]) UnmarshalBSONValue(typ byte, data []byte) error {
	switch bson.Type(typ) {
	case bson.TypeNull, bson.TypeUndefined:
		*n = Null[T]()
		return nil
	}
	var v T
	if err := bson.UnmarshalValue(bson.Type(typ), data, &v); err != nil {
		return err
	}
	*n = Some(v)
	return nil
}
