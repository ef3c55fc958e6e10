// Package storageview defines the narrow interface the serializer and
// archive need from a caller-supplied in-memory tensor (spec.md §1: "the
// engine treats that view as an opaque iterable source/sink of typed
// scalar elements with known shape and element type"). The real
// shape/stride view a host binding would supply is out of scope for this
// module; this package only specifies the contract and a small in-memory
// reference implementation used by this module's own tests and demo.
//
// Grounded on sstable/writer.go and sstable/reader.go's length-prefixed
// little-endian scalar encode/decode loops, generalized from "one key, one
// []byte value" to "N scalars of a fixed element type in C order".
package storageview

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/serialarch/fieldarchive/metainfo"
)

// View is the full contract the serializer validates a write/read against:
// the declared element type and dims (checked against the registered
// field.MetaInfo) plus the byte-level encode/decode archive.Archive needs.
// Any concrete type implementing this method set satisfies archive.View
// too, since Go interfaces are structural.
type View interface {
	Type() metainfo.ElementType
	Dims() []int
	ByteSize() int
	WriteTo(buf []byte) error
	ReadFrom(buf []byte) error
}

func elementCount(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// BoolView is an in-memory View over a flat []bool in C order.
type BoolView struct {
	dims []int
	Data []bool
}

func NewBoolView(dims []int, data []bool) *BoolView { return &BoolView{dims: dims, Data: data} }

func (v *BoolView) Type() metainfo.ElementType { return metainfo.Boolean }
func (v *BoolView) Dims() []int                { return v.dims }
func (v *BoolView) ByteSize() int              { return elementCount(v.dims) }

func (v *BoolView) WriteTo(buf []byte) error {
	if err := checkLen(len(v.Data), v.dims); err != nil {
		return err
	}
	for i, b := range v.Data {
		if b {
			buf[i] = 1
		} else {
			buf[i] = 0
		}
	}
	return nil
}

func (v *BoolView) ReadFrom(buf []byte) error {
	v.Data = make([]bool, len(buf))
	for i, b := range buf {
		v.Data[i] = b != 0
	}
	return nil
}

// Int32View is an in-memory View over a flat []int32 in C order.
type Int32View struct {
	dims []int
	Data []int32
}

func NewInt32View(dims []int, data []int32) *Int32View { return &Int32View{dims: dims, Data: data} }

func (v *Int32View) Type() metainfo.ElementType { return metainfo.Int32 }
func (v *Int32View) Dims() []int                { return v.dims }
func (v *Int32View) ByteSize() int              { return elementCount(v.dims) * 4 }

func (v *Int32View) WriteTo(buf []byte) error {
	if err := checkLen(len(v.Data), v.dims); err != nil {
		return err
	}
	for i, x := range v.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(x))
	}
	return nil
}

func (v *Int32View) ReadFrom(buf []byte) error {
	v.Data = make([]int32, len(buf)/4)
	for i := range v.Data {
		v.Data[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return nil
}

// Int64View is an in-memory View over a flat []int64 in C order.
type Int64View struct {
	dims []int
	Data []int64
}

func NewInt64View(dims []int, data []int64) *Int64View { return &Int64View{dims: dims, Data: data} }

func (v *Int64View) Type() metainfo.ElementType { return metainfo.Int64 }
func (v *Int64View) Dims() []int                { return v.dims }
func (v *Int64View) ByteSize() int              { return elementCount(v.dims) * 8 }

func (v *Int64View) WriteTo(buf []byte) error {
	if err := checkLen(len(v.Data), v.dims); err != nil {
		return err
	}
	for i, x := range v.Data {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(x))
	}
	return nil
}

func (v *Int64View) ReadFrom(buf []byte) error {
	v.Data = make([]int64, len(buf)/8)
	for i := range v.Data {
		v.Data[i] = int64(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return nil
}

// Float32View is an in-memory View over a flat []float32 in C order.
type Float32View struct {
	dims []int
	Data []float32
}

func NewFloat32View(dims []int, data []float32) *Float32View {
	return &Float32View{dims: dims, Data: data}
}

func (v *Float32View) Type() metainfo.ElementType { return metainfo.Float32 }
func (v *Float32View) Dims() []int                { return v.dims }
func (v *Float32View) ByteSize() int              { return elementCount(v.dims) * 4 }

func (v *Float32View) WriteTo(buf []byte) error {
	if err := checkLen(len(v.Data), v.dims); err != nil {
		return err
	}
	for i, x := range v.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return nil
}

func (v *Float32View) ReadFrom(buf []byte) error {
	v.Data = make([]float32, len(buf)/4)
	for i := range v.Data {
		v.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return nil
}

// Float64View is an in-memory View over a flat []float64 in C order.
type Float64View struct {
	dims []int
	Data []float64
}

func NewFloat64View(dims []int, data []float64) *Float64View {
	return &Float64View{dims: dims, Data: data}
}

func (v *Float64View) Type() metainfo.ElementType { return metainfo.Float64 }
func (v *Float64View) Dims() []int                { return v.dims }
func (v *Float64View) ByteSize() int              { return elementCount(v.dims) * 8 }

func (v *Float64View) WriteTo(buf []byte) error {
	if err := checkLen(len(v.Data), v.dims); err != nil {
		return err
	}
	for i, x := range v.Data {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return nil
}

func (v *Float64View) ReadFrom(buf []byte) error {
	v.Data = make([]float64, len(buf)/8)
	for i := range v.Data {
		v.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return nil
}

// StringView is an in-memory View over a flat []string in C order. Strings
// are variable length, so the wire form is a sequence of
// (uint32 length, bytes) records, little-endian, with no padding —
// matching the rest of the format's "no header, no separator beyond what
// the encoding itself needs" rule.
type StringView struct {
	dims []int
	Data []string
}

func NewStringView(dims []int, data []string) *StringView { return &StringView{dims: dims, Data: data} }

func (v *StringView) Type() metainfo.ElementType { return metainfo.String }
func (v *StringView) Dims() []int                { return v.dims }

func (v *StringView) ByteSize() int {
	n := 4 * len(v.Data)
	for _, s := range v.Data {
		n += len(s)
	}
	return n
}

func (v *StringView) WriteTo(buf []byte) error {
	if err := checkLen(len(v.Data), v.dims); err != nil {
		return err
	}
	off := 0
	for _, s := range v.Data {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(s)))
		off += 4
		copy(buf[off:], s)
		off += len(s)
	}
	return nil
}

func (v *StringView) ReadFrom(buf []byte) error {
	n := elementCount(v.dims)
	out := make([]string, 0, n)
	off := 0
	for len(out) < n {
		if off+4 > len(buf) {
			return fmt.Errorf("storageview: truncated string length prefix")
		}
		l := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		if off+l > len(buf) {
			return fmt.Errorf("storageview: truncated string payload")
		}
		out = append(out, string(buf[off:off+l]))
		off += l
	}
	v.Data = out
	return nil
}

func checkLen(got int, dims []int) error {
	want := elementCount(dims)
	if got != want {
		return fmt.Errorf("storageview: data has %d elements, dims %v want %d", got, dims, want)
	}
	return nil
}
