package metainfo

import (
	"bytes"
	"encoding/json"
	"fmt"

	fberrors "github.com/serialarch/fieldarchive/errors"
)

// Map is the base attribute container (M): unique string keys, with
// iteration order equal to insertion order, preserved across a JSON
// round-trip. It is the building block both Savepoint and FieldMetaInfo
// attach as their decoration.
//
// Map is not safe for concurrent use; the serializer above it serializes
// access the same way the teacher's Engine does with its own mutex.
type Map struct {
	keys   []string
	values map[string]Value
}

// New returns an empty Map.
func New() *Map {
	return &Map{values: make(map[string]Value)}
}

// Insert adds k -> v if k is not already present. It returns true if the
// insert happened, false if k already existed — it never errors on a
// duplicate key, matching spec's "never throws on duplicate" contract.
func (m *Map) Insert(k string, v Value) bool {
	if _, exists := m.values[k]; exists {
		return false
	}
	m.keys = append(m.keys, k)
	m.values[k] = v
	return true
}

// Overwrite replaces an existing key's value, requiring the new value carry
// the same ElementType tag as the one already stored. It fails with
// ErrKeyNotFound if k is absent and ErrTypeMismatch if the tag changed — a
// type change in place is never allowed; callers must Erase then Insert.
func (m *Map) Overwrite(k string, v Value) error {
	old, ok := m.values[k]
	if !ok {
		return fberrors.ErrKeyNotFound
	}
	if old.typ != v.typ || old.isArray != v.isArray {
		return fberrors.ErrTypeMismatch
	}
	m.values[k] = v
	return nil
}

// Erase removes k if present. It is idempotent: erasing a missing key is a
// no-op, not an error.
func (m *Map) Erase(k string) {
	if _, ok := m.values[k]; !ok {
		return
	}
	delete(m.values, k)
	for i, existing := range m.keys {
		if existing == k {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// At returns the typed value stored at k, or ErrKeyNotFound.
func (m *Map) At(k string) (Value, error) {
	v, ok := m.values[k]
	if !ok {
		return Value{}, fberrors.ErrKeyNotFound
	}
	return v, nil
}

// Has reports whether k is present.
func (m *Map) Has(k string) bool {
	_, ok := m.values[k]
	return ok
}

// Keys returns the map's keys in insertion order. The returned slice is a
// copy; mutating it does not affect the Map.
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *Map) Size() int  { return len(m.keys) }
func (m *Map) Empty() bool { return len(m.keys) == 0 }

func (m *Map) Clear() {
	m.keys = nil
	m.values = make(map[string]Value)
}

// Equal compares two Maps order-insensitively: same keys, same typed values.
// Used by Savepoint equality (spec: "order-insensitive for equality").
func (m *Map) Equal(other *Map) bool {
	if m.Size() != other.Size() {
		return false
	}
	for k, v := range m.values {
		ov, ok := other.values[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// tagNames maps an ElementType to the string tag used in the
// ["<type-tag>", value] JSON encoding (spec.md §6).
var tagNames = map[ElementType]string{
	Boolean: "boolean",
	Int32:   "int32",
	Int64:   "int64",
	Float32: "float32",
	Float64: "float64",
	String:  "string",
}

var tagFromName = func() map[string]ElementType {
	m := make(map[string]ElementType, len(tagNames))
	for t, n := range tagNames {
		m[n] = t
	}
	return m
}()

func arrayTagName(t ElementType) string { return tagNames[t] + "[]" }

// MarshalJSON writes the Map as an object whose key order matches insertion
// order (Go's map marshaling would otherwise sort keys alphabetically, which
// would silently violate the on-disk ordering invariant).
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := marshalValue(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalValue(v Value) ([]byte, error) {
	tag := tagNames[v.typ]
	if v.isArray {
		tag = arrayTagName(v.typ)
	}
	pair := [2]any{tag, v.data}
	return json.Marshal(pair)
}

// UnmarshalJSON parses a Map from its ["<tag>", value] encoding, preserving
// the object's on-disk key order via a streaming token decoder (a plain
// map[string]json.RawMessage unmarshal would discard that order).
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("metainfo: expected object, got %v", tok)
	}

	*m = Map{values: make(map[string]Value)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("metainfo: expected string key, got %v", keyTok)
		}

		var pair [2]json.RawMessage
		if err := dec.Decode(&pair); err != nil {
			return fmt.Errorf("metainfo: decoding value for %q: %w", key, err)
		}
		var tag string
		if err := json.Unmarshal(pair[0], &tag); err != nil {
			return fmt.Errorf("metainfo: decoding tag for %q: %w", key, err)
		}
		value, err := unmarshalValue(tag, pair[1])
		if err != nil {
			return fmt.Errorf("metainfo: decoding value for %q: %w", key, err)
		}
		m.keys = append(m.keys, key)
		m.values[key] = value
	}

	if _, err := dec.Token(); err != nil { // closing '}'
		return err
	}
	return nil
}

func unmarshalValue(tag string, raw json.RawMessage) (Value, error) {
	isArray := false
	name := tag
	if len(tag) > 2 && tag[len(tag)-2:] == "[]" {
		isArray = true
		name = tag[:len(tag)-2]
	}
	et, ok := tagFromName[name]
	if !ok {
		return Value{}, fmt.Errorf("unknown metainfo type tag %q", tag)
	}

	if !isArray {
		switch et {
		case Boolean:
			var v bool
			err := json.Unmarshal(raw, &v)
			return NewBool(v), err
		case Int32:
			var v int32
			err := json.Unmarshal(raw, &v)
			return NewInt32(v), err
		case Int64:
			var v int64
			err := json.Unmarshal(raw, &v)
			return NewInt64(v), err
		case Float32:
			var v float32
			err := json.Unmarshal(raw, &v)
			return NewFloat32(v), err
		case Float64:
			var v float64
			err := json.Unmarshal(raw, &v)
			return NewFloat64(v), err
		case String:
			var v string
			err := json.Unmarshal(raw, &v)
			return NewString(v), err
		}
	}

	switch et {
	case Boolean:
		var v []bool
		err := json.Unmarshal(raw, &v)
		return NewBoolArray(v), err
	case Int32:
		var v []int32
		err := json.Unmarshal(raw, &v)
		return NewInt32Array(v), err
	case Int64:
		var v []int64
		err := json.Unmarshal(raw, &v)
		return NewInt64Array(v), err
	case Float32:
		var v []float32
		err := json.Unmarshal(raw, &v)
		return NewFloat32Array(v), err
	case Float64:
		var v []float64
		err := json.Unmarshal(raw, &v)
		return NewFloat64Array(v), err
	case String:
		var v []string
		err := json.Unmarshal(raw, &v)
		return NewStringArray(v), err
	}
	return Value{}, fmt.Errorf("unknown metainfo type tag %q", tag)
}

// ToJSON and FromJSON are thin wrappers over the marshal/unmarshal methods
// above, named to match spec.md's M.toJSON / M.fromJSON operations.
func (m *Map) ToJSON() ([]byte, error) { return m.MarshalJSON() }

func FromJSON(data []byte) (*Map, error) {
	m := New()
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}
