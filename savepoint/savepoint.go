// Package savepoint implements the Savepoint (SP) and Savepoint Vector (SV)
// components of spec.md §3/§4.3: a named, metainfo-decorated checkpoint of
// host-program execution, and the stable-indexed, append-only sequence of
// them the serializer maintains.
package savepoint

import (
	"encoding/json"

	"github.com/serialarch/fieldarchive/metainfo"
)

// Savepoint (SP) is a name plus attached metainfo. Two Savepoints are equal
// iff their names are equal and their metainfo Maps are equal — the latter
// compares order-insensitively (spec.md §3) even though the on-disk
// encoding preserves key order.
type Savepoint struct {
	Name string
	Meta *metainfo.Map
}

// New returns a Savepoint, defaulting Meta to an empty Map if nil is passed.
func New(name string, meta *metainfo.Map) Savepoint {
	if meta == nil {
		meta = metainfo.New()
	}
	return Savepoint{Name: name, Meta: meta}
}

func (sp Savepoint) Equal(other Savepoint) bool {
	if sp.Name != other.Name {
		return false
	}
	return sp.Meta.Equal(other.Meta)
}

type jsonSavepoint struct {
	Name string        `json:"savepoint_name"`
	Meta *metainfo.Map `json:"meta_info"`
}

func (sp Savepoint) MarshalJSON() ([]byte, error) {
	meta := sp.Meta
	if meta == nil {
		meta = metainfo.New()
	}
	return json.Marshal(jsonSavepoint{Name: sp.Name, Meta: meta})
}

func (sp *Savepoint) UnmarshalJSON(data []byte) error {
	var j jsonSavepoint
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	meta := j.Meta
	if meta == nil {
		meta = metainfo.New()
	}
	sp.Name = j.Name
	sp.Meta = meta
	return nil
}
