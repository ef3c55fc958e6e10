// Package archive implements the Archive (A) abstraction of spec.md §3/§4.4
// and its reference implementation, the Binary Archive (BA): a
// content-addressed, deduplicating, append-only payload store addressed by
// FieldID.
package archive

// FieldID is the tuple (field name, stable payload index) that resolves a
// single stored payload forever, within one archive. For the Binary
// Archive, ID is an index into that field's FieldOffsetTable.
type FieldID struct {
	Name string
	ID   int
}

// Archive is the storage-engine-agnostic interface the serializer composes.
// BinaryArchive is the only implementation this module ships, but the
// interface keeps the serializer from depending on its on-disk layout.
type Archive interface {
	// Write serializes view (see storageview.View) and stores it under
	// name, deduplicating against any payload already stored for name with
	// identical content. It returns the FieldID to record in the
	// SavepointVector.
	Write(name string, view View) (FieldID, error)

	// Read resolves id and scatters the stored payload into view. It fails
	// if id is out of range, if the file is short, or if the stored
	// checksum does not match.
	Read(id FieldID, view View) error

	// Clear truncates all per-field data and empties every offset table;
	// called when a serializer opens an archive directory in Write mode.
	Clear() error

	// Stats reports the number of distinct payloads and total bytes stored
	// for field, for introspection only.
	Stats(field string) (count int, bytes int64, err error)
}

// View is the minimal opaque interface the archive needs from the caller's
// in-memory tensor representation (spec.md §1: the storage view is an
// external collaborator, "an opaque iterable source/sink of typed scalar
// elements with known shape and element type"). The full definition lives
// in package storageview; archive only depends on this narrow slice of it
// to avoid a package cycle between the two.
type View interface {
	// ByteSize is the number of bytes WriteTo will write / ReadFrom expects
	// to read, computed from the view's declared shape and element type.
	ByteSize() int

	// WriteTo serializes the view into a contiguous little-endian buffer in
	// the view's element order. Strides and padding are never stored.
	WriteTo(buf []byte) error

	// ReadFrom scatters a contiguous little-endian buffer into the view in
	// the view's element order.
	ReadFrom(buf []byte) error
}
