package field

import (
	"bytes"
	"encoding/json"
	"fmt"

	fberrors "github.com/serialarch/fieldarchive/errors"
)

// Map (FMAP) is the name -> MetaInfo registry. Insertion is idempotent only
// when an identical MetaInfo already exists under that name; any other
// mismatch is rejected with ErrFieldAlreadyRegisteredDifferently — the
// engine never silently widens a field's declared shape or type.
//
// Grounded on sstable/ssManager.go's level-keyed SSTable bookkeeping,
// generalized from "levels of files" to "one descriptor per field name".
type Map struct {
	names  []string
	byName map[string]MetaInfo
}

func NewMap() *Map {
	return &Map{byName: make(map[string]MetaInfo)}
}

// Insert registers name -> fm. It succeeds (returns nil) if name is
// unregistered, or is a no-op success if name is already registered with a
// structurally identical MetaInfo. Any other mismatch fails with
// ErrFieldAlreadyRegisteredDifferently.
func (m *Map) Insert(name string, fm MetaInfo) error {
	existing, ok := m.byName[name]
	if !ok {
		m.names = append(m.names, name)
		m.byName[name] = fm
		return nil
	}
	if existing.Equal(fm) {
		return nil
	}
	return fberrors.ErrFieldAlreadyRegisteredDifferently
}

// Find returns the MetaInfo registered under name, or ErrKeyNotFound.
func (m *Map) Find(name string) (MetaInfo, error) {
	fm, ok := m.byName[name]
	if !ok {
		return MetaInfo{}, fberrors.ErrKeyNotFound
	}
	return fm, nil
}

func (m *Map) Has(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// FieldNames returns registered field names in registration order.
func (m *Map) FieldNames() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

func (m *Map) Size() int { return len(m.names) }

// MarshalJSON renders the FMAP as { name: FM.toJSON(), ... } in
// registration order. This is the *value* that a composite document embeds
// under its own "field_map" key (spec.md §6); the key itself, and the
// schema-error check for its absence (spec.md §4.2), are the composite
// document's responsibility — see serializer/document.go.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range m.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		fmBytes, err := json.Marshal(m.byName[name])
		if err != nil {
			return nil, err
		}
		buf.Write(fmBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a { name: FM.toJSON(), ... } object, preserving key
// order via a streaming token decoder (a plain map unmarshal would discard
// registration order).
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("field: expected object for field_map, got %v", tok)
	}

	*m = Map{byName: make(map[string]MetaInfo)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("field: expected string field name, got %v", keyTok)
		}
		var fm MetaInfo
		if err := dec.Decode(&fm); err != nil {
			return fmt.Errorf("field: decoding %q: %w", name, err)
		}
		m.names = append(m.names, name)
		m.byName[name] = fm
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
