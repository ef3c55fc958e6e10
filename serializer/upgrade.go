package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"

	"github.com/serialarch/fieldarchive/archive"
	fberrors "github.com/serialarch/fieldarchive/errors"
	"github.com/serialarch/fieldarchive/field"
	"github.com/serialarch/fieldarchive/metainfo"
	"github.com/serialarch/fieldarchive/savepoint"
)

// legacyDoc mirrors the pre-schema_version document's top-level shape
// (spec.md §4.6): FieldsTable and OffsetTable are arrays of dynamically
// shaped objects (a handful of reserved "__"-prefixed keys plus an
// arbitrary set of metainfo attributes); GlobalMetainfo is itself such an
// object.
type legacyDoc struct {
	FieldsTable    json.RawMessage `json:"FieldsTable"`
	GlobalMetainfo json.RawMessage `json:"GlobalMetainfo"`
	OffsetTable    json.RawMessage `json:"OffsetTable"`
}

// runLegacyUpgrade implements spec.md §4.6: parse the legacy document found
// at <prefix>.json, reconstruct FMAP/SV/global-M/archive offset tables
// under current-schema semantics, and best-effort persist the result.
// Upgrade only ever runs while opening in Read mode (spec.md §4.5); Write
// and Append fail with ErrUpgradeReadOnly before reaching here.
func (s *Serializer) runLegacyUpgrade() error {
	data, err := os.ReadFile(s.legacyPath())
	if err != nil {
		return errors.Wrap(err, "serializer: read legacy metadata document")
	}

	var doc legacyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: legacy document: %v", fberrors.ErrMetadataCorrupt, err)
	}

	s.log.WithFields(logger.Fields{"path": s.legacyPath()}).Info("serializer: upgrading legacy metadata document")

	floatTag, err := inferFloatTag(doc.FieldsTable)
	if err != nil {
		return err
	}

	s.global = metainfo.New()
	if len(doc.GlobalMetainfo) > 0 {
		if err := upgradeMetaInfoInto(s.global, doc.GlobalMetainfo, floatTag); err != nil {
			return err
		}
	}

	s.fields = field.NewMap()
	if err := s.upgradeFieldsTable(doc.FieldsTable, floatTag); err != nil {
		return err
	}

	arch, err := archive.Open(s.dir, s.prefix, archive.WithLogger(s.log))
	if err != nil {
		return err
	}
	s.arch = arch

	s.savepoints = savepoint.New()
	if err := s.upgradeOffsetTable(doc.OffsetTable, floatTag); err != nil {
		return err
	}

	if err := s.arch.Persist(); err != nil {
		s.log.WithFields(logger.Fields{"error": err}).Warn("serializer: failed to persist upgraded archive metadata")
	}
	if err := s.persistDocument(); err != nil {
		s.log.WithFields(logger.Fields{"error": err}).Warn("serializer: failed to persist upgraded metadata document")
	}
	s.log.Info("serializer: legacy upgrade complete")
	return nil
}

// inferFloatTag implements spec.md §4.6 step 1: Float32 if any FieldsTable
// entry declares __elementtype == "float", else Float64.
func inferFloatTag(fieldsTable json.RawMessage) (metainfo.ElementType, error) {
	if len(fieldsTable) == 0 {
		return metainfo.Float64, nil
	}
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(fieldsTable, &entries); err != nil {
		return 0, fmt.Errorf("%w: FieldsTable: %v", fberrors.ErrMetadataCorrupt, err)
	}
	for _, e := range entries {
		if raw, ok := e["__elementtype"]; ok {
			var et string
			if err := json.Unmarshal(raw, &et); err == nil && et == "float" {
				return metainfo.Float32, nil
			}
		}
	}
	return metainfo.Float64, nil
}

// upgradeMetaInfoInto decodes a flat legacy metainfo object (the document's
// GlobalMetainfo, or a FieldsTable/OffsetTable entry's non-"__" keys) into
// dst, inferring each value's tag per spec.md §4.6 step 2.
func upgradeMetaInfoInto(dst *metainfo.Map, raw json.RawMessage, floatTag metainfo.ElementType) error {
	keys, values, err := decodeOrderedObject(raw)
	if err != nil {
		return fmt.Errorf("%w: GlobalMetainfo: %v", fberrors.ErrMetadataCorrupt, err)
	}
	for _, k := range keys {
		if isReservedKey(k) {
			continue
		}
		v, err := inferValue(values[k], floatTag)
		if err != nil {
			return err
		}
		dst.Insert(k, v)
	}
	return nil
}

var legacyElementType = map[string]metainfo.ElementType{
	"int":    metainfo.Int32,
	"float":  metainfo.Float32,
	"double": metainfo.Float64,
}

// upgradeFieldsTable implements spec.md §4.6 step 3.
func (s *Serializer) upgradeFieldsTable(raw json.RawMessage, floatTag metainfo.ElementType) error {
	if len(raw) == 0 {
		return nil
	}
	order, entries, err := decodeOrderedObjectArray(raw)
	if err != nil {
		return fmt.Errorf("%w: FieldsTable: %v", fberrors.ErrMetadataCorrupt, err)
	}

	for i, keys := range order {
		entry := entries[i]
		name, err := requiredString(entry, "__name")
		if err != nil {
			return err
		}

		et := metainfo.Float64
		if raw, ok := entry["__elementtype"]; ok {
			var name string
			if err := json.Unmarshal(raw, &name); err == nil {
				if t, ok := legacyElementType[name]; ok {
					et = t
				}
			}
		}

		isize, err := requiredInt(entry, "__isize")
		if err != nil {
			return err
		}
		jsize, err := requiredInt(entry, "__jsize")
		if err != nil {
			return err
		}
		ksize, err := requiredInt(entry, "__ksize")
		if err != nil {
			return err
		}
		dims := []int{isize, jsize, ksize}
		if lraw, ok := entry["__lsize"]; ok {
			var lsize int
			if err := json.Unmarshal(lraw, &lsize); err != nil {
				return fmt.Errorf("%w: __lsize: %v", fberrors.ErrMetadataCorrupt, err)
			}
			dims = append(dims, lsize)
		}

		meta := metainfo.New()
		for _, k := range keys {
			if isReservedKey(k) {
				continue
			}
			v, err := inferValue(entry[k], floatTag)
			if err != nil {
				return err
			}
			meta.Insert(k, v)
		}

		fm, err := field.New(et, dims, meta)
		if err != nil {
			return fmt.Errorf("%w: field %q: %v", fberrors.ErrMetadataCorrupt, name, err)
		}
		if err := s.fields.Insert(name, fm); err != nil {
			return err
		}
	}
	return nil
}

// upgradeOffsetTable implements spec.md §4.6 step 4.
func (s *Serializer) upgradeOffsetTable(raw json.RawMessage, floatTag metainfo.ElementType) error {
	if len(raw) == 0 {
		return nil
	}
	order, entries, err := decodeOrderedObjectArray(raw)
	if err != nil {
		return fmt.Errorf("%w: OffsetTable: %v", fberrors.ErrMetadataCorrupt, err)
	}

	for i, keys := range order {
		entry := entries[i]
		name, err := requiredString(entry, "__name")
		if err != nil {
			return err
		}

		meta := metainfo.New()
		for _, k := range keys {
			if isReservedKey(k) {
				continue
			}
			v, err := inferValue(entry[k], floatTag)
			if err != nil {
				return err
			}
			meta.Insert(k, v)
		}
		idx := s.savepoints.Insert(savepoint.New(name, meta))

		offsetsRaw, ok := entry["__offsets"]
		if !ok {
			continue
		}
		offsetsOrder, offsets, err := decodeOrderedObject(offsetsRaw)
		if err != nil {
			return fmt.Errorf("%w: __offsets: %v", fberrors.ErrMetadataCorrupt, err)
		}
		for _, fieldName := range offsetsOrder {
			var pair [2]json.RawMessage
			if err := json.Unmarshal(offsets[fieldName], &pair); err != nil {
				return fmt.Errorf("%w: __offsets[%q]: %v", fberrors.ErrMetadataCorrupt, fieldName, err)
			}
			var offset int64
			if err := json.Unmarshal(pair[0], &offset); err != nil {
				return fmt.Errorf("%w: __offsets[%q] offset: %v", fberrors.ErrMetadataCorrupt, fieldName, err)
			}
			var checksum string
			if err := json.Unmarshal(pair[1], &checksum); err != nil {
				return fmt.Errorf("%w: __offsets[%q] checksum: %v", fberrors.ErrMetadataCorrupt, fieldName, err)
			}

			id, err := s.arch.AdoptLegacyEntry(fieldName, offset, checksum)
			if err != nil {
				return err
			}
			if err := s.savepoints.AddField(idx, fieldName, archive.FieldID{Name: fieldName, ID: id}); err != nil {
				return err
			}
		}
	}
	return nil
}

func isReservedKey(k string) bool {
	return len(k) >= 2 && k[0] == '_' && k[1] == '_'
}

func requiredString(entry map[string]json.RawMessage, key string) (string, error) {
	raw, ok := entry[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", fberrors.ErrMetadataCorrupt, key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %q: %v", fberrors.ErrMetadataCorrupt, key, err)
	}
	return s, nil
}

func requiredInt(entry map[string]json.RawMessage, key string) (int, error) {
	raw, ok := entry[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", fberrors.ErrMetadataCorrupt, key)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%w: %q: %v", fberrors.ErrMetadataCorrupt, key, err)
	}
	return n, nil
}

// inferValue implements spec.md §4.6's tag-inference rule for an untagged
// JSON scalar: string -> String, boolean -> Boolean, integer -> Int32,
// float -> floatTag. Unknown JSON shapes (arrays, objects, null) fail
// ErrUpgradeTypeInferenceFailure.
func inferValue(raw json.RawMessage, floatTag metainfo.ElementType) (metainfo.Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return metainfo.Value{}, fberrors.ErrUpgradeTypeInferenceFailure
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return metainfo.Value{}, err
		}
		return metainfo.NewString(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return metainfo.Value{}, err
		}
		return metainfo.NewBool(b), nil
	default:
		if trimmed[0] != '-' && (trimmed[0] < '0' || trimmed[0] > '9') {
			return metainfo.Value{}, fberrors.ErrUpgradeTypeInferenceFailure
		}
		if isIntegerLiteral(trimmed) {
			var i int64
			if err := json.Unmarshal(trimmed, &i); err != nil {
				return metainfo.Value{}, err
			}
			return metainfo.NewInt32(int32(i)), nil
		}
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return metainfo.Value{}, err
		}
		if floatTag == metainfo.Float32 {
			return metainfo.NewFloat32(float32(f)), nil
		}
		return metainfo.NewFloat64(f), nil
	}
}

func isIntegerLiteral(raw []byte) bool {
	for _, c := range raw {
		if c == '.' || c == 'e' || c == 'E' {
			return false
		}
	}
	return true
}

// decodeOrderedObject decodes a flat JSON object, returning its keys in
// on-disk order alongside a lookup map — legacy tag inference doesn't
// strictly require preserving order, but doing so keeps the upgraded
// Maps deterministic across repeated upgrades of the same input.
func decodeOrderedObject(raw json.RawMessage) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
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

// decodeOrderedObjectArray decodes a JSON array of objects, returning each
// object's key order and lookup map in array order.
func decodeOrderedObjectArray(raw json.RawMessage) ([][]string, []map[string]json.RawMessage, error) {
	var rawEntries []json.RawMessage
	if err := json.Unmarshal(raw, &rawEntries); err != nil {
		return nil, nil, err
	}
	order := make([][]string, len(rawEntries))
	entries := make([]map[string]json.RawMessage, len(rawEntries))
	for i, re := range rawEntries {
		keys, values, err := decodeOrderedObject(re)
		if err != nil {
			return nil, nil, err
		}
		order[i] = keys
		entries[i] = values
	}
	return order, entries, nil
}
