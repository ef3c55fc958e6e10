package savepoint

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/serialarch/fieldarchive/archive"
	fberrors "github.com/serialarch/fieldarchive/errors"
)

// entry is one Savepoint plus its ordered field name -> FieldID map.
type entry struct {
	sp         Savepoint
	fieldNames []string
	fields     map[string]archive.FieldID
}

// Vector (SV) is the ordered, append-only list of unique Savepoints the
// serializer maintains. Array position is identity: indices are stable for
// the lifetime of an in-memory Vector and across persistence. Grounded on
// sstable/ssManager.go's `[][]*SSTable` level list, which is likewise
// ordered, only ever appended to, and never reordered.
type Vector struct {
	entries []entry
}

func New() *Vector { return &Vector{} }

// Find returns the index of sp by (name, meta) equality, or -1.
func (v *Vector) Find(sp Savepoint) int {
	for i, e := range v.entries {
		if e.sp.Equal(sp) {
			return i
		}
	}
	return -1
}

// Insert appends sp if not already present and returns its index; if an
// equal Savepoint already exists, its existing index is returned and the
// vector is not modified.
func (v *Vector) Insert(sp Savepoint) int {
	if idx := v.Find(sp); idx != -1 {
		return idx
	}
	v.entries = append(v.entries, entry{sp: sp, fields: make(map[string]archive.FieldID)})
	return len(v.entries) - 1
}

func (v *Vector) Len() int { return len(v.entries) }

// At returns the Savepoint stored at idx.
func (v *Vector) At(idx int) (Savepoint, error) {
	if idx < 0 || idx >= len(v.entries) {
		return Savepoint{}, fberrors.ErrSavepointNotFound
	}
	return v.entries[idx].sp, nil
}

// HasField reports whether idx already has name recorded.
func (v *Vector) HasField(idx int, name string) bool {
	if idx < 0 || idx >= len(v.entries) {
		return false
	}
	_, ok := v.entries[idx].fields[name]
	return ok
}

// AddField records fid under name at idx. It fails with
// ErrFieldAlreadyAtSavepoint if name is already recorded there.
func (v *Vector) AddField(idx int, name string, fid archive.FieldID) error {
	if idx < 0 || idx >= len(v.entries) {
		return fberrors.ErrSavepointNotFound
	}
	e := &v.entries[idx]
	if _, ok := e.fields[name]; ok {
		return fberrors.ErrFieldAlreadyAtSavepoint
	}
	e.fieldNames = append(e.fieldNames, name)
	e.fields[name] = fid
	return nil
}

// GetFieldID returns the FieldID recorded under name at idx, or
// ErrFieldNotAtSavepoint.
func (v *Vector) GetFieldID(idx int, name string) (archive.FieldID, error) {
	if idx < 0 || idx >= len(v.entries) {
		return archive.FieldID{}, fberrors.ErrSavepointNotFound
	}
	fid, ok := v.entries[idx].fields[name]
	if !ok {
		return archive.FieldID{}, fberrors.ErrFieldNotAtSavepoint
	}
	return fid, nil
}

// FieldsAt lists the field names recorded at idx, in the order they were
// added.
func (v *Vector) FieldsAt(idx int) []string {
	if idx < 0 || idx >= len(v.entries) {
		return nil
	}
	out := make([]string, len(v.entries[idx].fieldNames))
	copy(out, v.entries[idx].fieldNames)
	return out
}

// --- JSON ---

type jsonEntry struct {
	Savepoint Savepoint       `json:"savepoint"`
	Fields    json.RawMessage `json:"fields"`
}

// MarshalJSON renders the Vector as an ordered array of
// {"savepoint": ..., "fields": {name: [id], ...}} objects, per spec.md
// §4.3. Array position defines the stable index.
func (v *Vector) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range v.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		// Written by hand in fieldNames order: a Go map here would be
		// marshaled with its keys sorted alphabetically.
		var fields bytes.Buffer
		fields.WriteByte('{')
		for j, name := range e.fieldNames {
			if j > 0 {
				fields.WriteByte(',')
			}
			keyBytes, err := json.Marshal(name)
			if err != nil {
				return nil, err
			}
			fields.Write(keyBytes)
			fmt.Fprintf(&fields, ":[%d]", e.fields[name].ID)
		}
		fields.WriteByte('}')
		b, err := json.Marshal(jsonEntry{Savepoint: e.sp, Fields: fields.Bytes()})
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses the Vector, preserving both array order (savepoint
// index) and each entry's field-name insertion order. Field order is
// recovered with a streaming token decoder straight off the "fields" object's
// bytes (the same pattern serializer's legacy upgrade uses) rather than via
// an intermediate map, since encoding/json map keys always sort
// alphabetically on marshal and would silently discard on-disk order.
func (v *Vector) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("savepoint: expected array, got %v", tok)
	}

	*v = Vector{}
	for dec.More() {
		entryTok, err := dec.Token()
		if err != nil {
			return err
		}
		if delim, ok := entryTok.(json.Delim); !ok || delim != '{' {
			return fmt.Errorf("savepoint: expected object, got %v", entryTok)
		}

		var spRaw, fieldsRaw json.RawMessage
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return err
			}
			switch keyTok.(string) {
			case "savepoint":
				if err := dec.Decode(&spRaw); err != nil {
					return err
				}
			case "fields":
				if err := dec.Decode(&fieldsRaw); err != nil {
					return err
				}
			default:
				var skip json.RawMessage
				if err := dec.Decode(&skip); err != nil {
					return err
				}
			}
		}
		if _, err := dec.Token(); err != nil {
			return err
		}

		var sp Savepoint
		if err := json.Unmarshal(spRaw, &sp); err != nil {
			return err
		}
		e := entry{sp: sp, fields: make(map[string]archive.FieldID)}

		names, values, err := decodeOrderedObject(fieldsRaw)
		if err != nil {
			return err
		}
		for _, name := range names {
			var ids []int
			if err := json.Unmarshal(values[name], &ids); err != nil {
				return err
			}
			if len(ids) != 1 {
				return fmt.Errorf("savepoint: field %q has malformed id list %v", name, ids)
			}
			e.fieldNames = append(e.fieldNames, name)
			e.fields[name] = archive.FieldID{Name: name, ID: ids[0]}
		}

		v.entries = append(v.entries, e)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// decodeOrderedObject decodes a flat JSON object, returning its keys in
// on-disk order alongside a lookup map.
func decodeOrderedObject(raw json.RawMessage) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("savepoint: expected object, got %v", tok)
	}

	var keys []string
	values := make(map[string]json.RawMessage)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key := keyTok.(string)
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values[key] = val
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}
