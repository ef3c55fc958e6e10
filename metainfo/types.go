package metainfo

import "fmt"

// ElementType tags the six scalar kinds a Value or a field payload can hold.
// Payload endianness on disk is always little-endian regardless of host;
// this tag only decides how many bytes (if fixed) one scalar occupies.
type ElementType int

const (
	Boolean ElementType = iota
	Int32
	Int64
	Float32
	Float64
	String
)

func (t ElementType) String() string {
	switch t {
	case Boolean:
		return "boolean"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case String:
		return "string"
	default:
		return fmt.Sprintf("elementtype(%d)", int(t))
	}
}

// ByteSize returns the fixed on-disk size of one scalar of t, or -1 for
// String, whose scalars are variable length.
func (t ElementType) ByteSize() int {
	switch t {
	case Boolean:
		return 1
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	case String:
		return -1
	default:
		return -1
	}
}

func (t ElementType) valid() bool {
	return t >= Boolean && t <= String
}
