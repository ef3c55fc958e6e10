// Package field implements the Field Metainfo (FM) and Field Map (FMAP)
// components of spec.md §3/§4.2: a field's fixed type/shape/attributes, and
// the name -> descriptor registry the serializer validates every write and
// read against.
package field

import (
	"encoding/json"
	"fmt"

	"github.com/serialarch/fieldarchive/metainfo"
)

// MetaInfo (FM) is a field's element type, fixed dimensions, and attached
// metainfo. Dimensionality is fixed at construction; dims must all be
// positive.
type MetaInfo struct {
	Type metainfo.ElementType
	Dims []int
	Meta *metainfo.Map
}

// New validates dims (all positive) and returns a MetaInfo, defaulting Meta
// to an empty Map if nil is passed.
func New(t metainfo.ElementType, dims []int, meta *metainfo.Map) (MetaInfo, error) {
	for _, d := range dims {
		if d <= 0 {
			return MetaInfo{}, fmt.Errorf("field: dims must be positive, got %v", dims)
		}
	}
	if meta == nil {
		meta = metainfo.New()
	}
	cp := make([]int, len(dims))
	copy(cp, dims)
	return MetaInfo{Type: t, Dims: cp, Meta: meta}, nil
}

// Equal compares two MetaInfo structurally across type, dims and meta.
func (fm MetaInfo) Equal(other MetaInfo) bool {
	if fm.Type != other.Type || len(fm.Dims) != len(other.Dims) {
		return false
	}
	for i := range fm.Dims {
		if fm.Dims[i] != other.Dims[i] {
			return false
		}
	}
	if (fm.Meta == nil) != (other.Meta == nil) {
		return false
	}
	if fm.Meta != nil && !fm.Meta.Equal(other.Meta) {
		return false
	}
	return true
}

// ElementCount is the product of Dims; used to size a contiguous scalar
// buffer for a field payload of this shape.
func (fm MetaInfo) ElementCount() int {
	n := 1
	for _, d := range fm.Dims {
		n *= d
	}
	return n
}

type jsonMetaInfo struct {
	Type string        `json:"type"`
	Dims []int         `json:"dims"`
	Meta *metainfo.Map `json:"meta"`
}

var typeNames = map[metainfo.ElementType]string{
	metainfo.Boolean: "boolean",
	metainfo.Int32:   "int32",
	metainfo.Int64:   "int64",
	metainfo.Float32: "float32",
	metainfo.Float64: "float64",
	metainfo.String:  "string",
}

var typeFromName = func() map[string]metainfo.ElementType {
	m := make(map[string]metainfo.ElementType, len(typeNames))
	for t, n := range typeNames {
		m[n] = t
	}
	return m
}()

// MarshalJSON implements FM.toJSON.
func (fm MetaInfo) MarshalJSON() ([]byte, error) {
	meta := fm.Meta
	if meta == nil {
		meta = metainfo.New()
	}
	return json.Marshal(jsonMetaInfo{
		Type: typeNames[fm.Type],
		Dims: fm.Dims,
		Meta: meta,
	})
}

// UnmarshalJSON implements FM.fromJSON.
func (fm *MetaInfo) UnmarshalJSON(data []byte) error {
	var j jsonMetaInfo
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	t, ok := typeFromName[j.Type]
	if !ok {
		return fmt.Errorf("field: unknown element type %q", j.Type)
	}
	meta := j.Meta
	if meta == nil {
		meta = metainfo.New()
	}
	fm.Type = t
	fm.Dims = j.Dims
	fm.Meta = meta
	return nil
}
