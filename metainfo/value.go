package metainfo

import (
	fberrors "github.com/serialarch/fieldarchive/errors"
)

// Value is a tagged union of either a single scalar of one ElementType, or a
// homogeneous sequence of scalars of one ElementType. The tag is fixed at
// construction; changing a Value's type in place is not possible by design —
// callers that need a different type must erase and reinsert under the Map
// (see map.go).
type Value struct {
	typ     ElementType
	isArray bool
	data    any
}

func (v Value) Type() ElementType { return v.typ }
func (v Value) IsArray() bool     { return v.isArray }

// --- scalar constructors ---

func NewBool(v bool) Value       { return Value{typ: Boolean, data: v} }
func NewInt32(v int32) Value     { return Value{typ: Int32, data: v} }
func NewInt64(v int64) Value     { return Value{typ: Int64, data: v} }
func NewFloat32(v float32) Value { return Value{typ: Float32, data: v} }
func NewFloat64(v float64) Value { return Value{typ: Float64, data: v} }
func NewString(v string) Value   { return Value{typ: String, data: v} }

// --- array constructors ---

func NewBoolArray(v []bool) Value       { return Value{typ: Boolean, isArray: true, data: append([]bool(nil), v...)} }
func NewInt32Array(v []int32) Value     { return Value{typ: Int32, isArray: true, data: append([]int32(nil), v...)} }
func NewInt64Array(v []int64) Value     { return Value{typ: Int64, isArray: true, data: append([]int64(nil), v...)} }
func NewFloat32Array(v []float32) Value { return Value{typ: Float32, isArray: true, data: append([]float32(nil), v...)} }
func NewFloat64Array(v []float64) Value { return Value{typ: Float64, isArray: true, data: append([]float64(nil), v...)} }
func NewStringArray(v []string) Value   { return Value{typ: String, isArray: true, data: append([]string(nil), v...)} }

// --- scalar accessors ---

func (v Value) Bool() (bool, error) {
	b, ok := v.data.(bool)
	if v.typ != Boolean || v.isArray || !ok {
		return false, fberrors.ErrTypeMismatch
	}
	return b, nil
}

func (v Value) String_() (string, error) {
	s, ok := v.data.(string)
	if v.typ != String || v.isArray || !ok {
		return "", fberrors.ErrTypeMismatch
	}
	return s, nil
}

// Int32 returns the stored value if it was constructed as Int32. No
// narrowing is performed: reading an Int64 as Int32 is always a mismatch.
func (v Value) Int32() (int32, error) {
	i, ok := v.data.(int32)
	if v.typ != Int32 || v.isArray || !ok {
		return 0, fberrors.ErrTypeMismatch
	}
	return i, nil
}

// Int64 widens an Int32 value if one was stored; Int32 -> Int64 is always
// exactly representable.
func (v Value) Int64() (int64, error) {
	if v.isArray {
		return 0, fberrors.ErrTypeMismatch
	}
	switch v.typ {
	case Int64:
		return v.data.(int64), nil
	case Int32:
		return int64(v.data.(int32)), nil
	default:
		return 0, fberrors.ErrTypeMismatch
	}
}

// Float32 widens an Int32 value only when it round-trips exactly back to the
// original integer; otherwise the widening is rejected rather than losing
// precision silently.
func (v Value) Float32() (float32, error) {
	if v.isArray {
		return 0, fberrors.ErrTypeMismatch
	}
	switch v.typ {
	case Float32:
		return v.data.(float32), nil
	case Int32:
		i := v.data.(int32)
		f := float32(i)
		if int32(f) != i {
			return 0, fberrors.ErrTypeMismatch
		}
		return f, nil
	default:
		return 0, fberrors.ErrTypeMismatch
	}
}

// Float64 widens Int32 or Float32 values; both are always exactly
// representable as float64.
func (v Value) Float64() (float64, error) {
	if v.isArray {
		return 0, fberrors.ErrTypeMismatch
	}
	switch v.typ {
	case Float64:
		return v.data.(float64), nil
	case Float32:
		return float64(v.data.(float32)), nil
	case Int32:
		return float64(v.data.(int32)), nil
	default:
		return 0, fberrors.ErrTypeMismatch
	}
}

// --- array accessors (no widening; an array keeps its constructed tag) ---

func (v Value) BoolArray() ([]bool, error) {
	a, ok := v.data.([]bool)
	if v.typ != Boolean || !v.isArray || !ok {
		return nil, fberrors.ErrTypeMismatch
	}
	return a, nil
}

func (v Value) Int32Array() ([]int32, error) {
	a, ok := v.data.([]int32)
	if v.typ != Int32 || !v.isArray || !ok {
		return nil, fberrors.ErrTypeMismatch
	}
	return a, nil
}

func (v Value) Int64Array() ([]int64, error) {
	a, ok := v.data.([]int64)
	if v.typ != Int64 || !v.isArray || !ok {
		return nil, fberrors.ErrTypeMismatch
	}
	return a, nil
}

func (v Value) Float32Array() ([]float32, error) {
	a, ok := v.data.([]float32)
	if v.typ != Float32 || !v.isArray || !ok {
		return nil, fberrors.ErrTypeMismatch
	}
	return a, nil
}

func (v Value) Float64Array() ([]float64, error) {
	a, ok := v.data.([]float64)
	if v.typ != Float64 || !v.isArray || !ok {
		return nil, fberrors.ErrTypeMismatch
	}
	return a, nil
}

func (v Value) StringArray() ([]string, error) {
	a, ok := v.data.([]string)
	if v.typ != String || !v.isArray || !ok {
		return nil, fberrors.ErrTypeMismatch
	}
	return a, nil
}

// Equal compares two Values structurally: same tag, same array-ness, same
// contents. Used by Savepoint and FieldMetaInfo equality.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ || v.isArray != other.isArray {
		return false
	}
	if !v.isArray {
		return v.data == other.data
	}
	switch a := v.data.(type) {
	case []bool:
		b, ok := other.data.([]bool)
		return ok && equalSlice(a, b)
	case []int32:
		b, ok := other.data.([]int32)
		return ok && equalSlice(a, b)
	case []int64:
		b, ok := other.data.([]int64)
		return ok && equalSlice(a, b)
	case []float32:
		b, ok := other.data.([]float32)
		return ok && equalSlice(a, b)
	case []float64:
		b, ok := other.data.([]float64)
		return ok && equalSlice(a, b)
	case []string:
		b, ok := other.data.([]string)
		return ok && equalSlice(a, b)
	default:
		return false
	}
}

func equalSlice[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
