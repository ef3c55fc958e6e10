package archive

import (
	"encoding/binary"
	"math"
	"testing"

	fberrors "github.com/serialarch/fieldarchive/errors"
)

// float64View is a minimal View over a []float64 fixture, used only by this
// package's tests (the full implementation lives in package storageview).
type float64View struct {
	data []float64
}

func (v *float64View) ByteSize() int { return len(v.data) * 8 }

func (v *float64View) WriteTo(buf []byte) error {
	for i, f := range v.data {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return nil
}

func (v *float64View) ReadFrom(buf []byte) error {
	v.data = make([]float64, len(buf)/8)
	for i := range v.data {
		v.data[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return nil
}

func TestDedupSameBytesSameID(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir, "p")
	if err != nil {
		t.Fatal(err)
	}

	v1 := &float64View{data: []float64{1, 2}}
	id1, err := a.Write("f", v1)
	if err != nil {
		t.Fatal(err)
	}

	v2 := &float64View{data: []float64{1, 2}}
	id2, err := a.Write("f", v2)
	if err != nil {
		t.Fatal(err)
	}

	if id1.ID != id2.ID {
		t.Fatalf("expected equal ids for identical bytes, got %d vs %d", id1.ID, id2.ID)
	}

	count, sz, err := a.Stats("f")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 || sz != 16 {
		t.Fatalf("expected 1 entry / 16 bytes, got %d entries / %d bytes", count, sz)
	}
}

func TestDistinctContentDistinctIDs(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir, "p")
	if err != nil {
		t.Fatal(err)
	}

	id1, err := a.Write("f", &float64View{data: []float64{1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	id2, err := a.Write("f", &float64View{data: []float64{1, 3}})
	if err != nil {
		t.Fatal(err)
	}
	if id1.ID == id2.ID {
		t.Fatalf("expected distinct ids for distinct content")
	}

	count, sz, err := a.Stats("f")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 || sz != 32 {
		t.Fatalf("expected 2 entries / 32 bytes, got %d entries / %d bytes", count, sz)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir, "p")
	if err != nil {
		t.Fatal(err)
	}

	id, err := a.Write("f", &float64View{data: []float64{1, 2, 3, 4, 5, 6}})
	if err != nil {
		t.Fatal(err)
	}

	out := &float64View{}
	// allocate a buffer sized for a 6-element payload via ByteSize
	out.data = make([]float64, 6)
	if err := a.Read(id, out); err != nil {
		t.Fatal(err)
	}
	want := []float64{1, 2, 3, 4, 5, 6}
	for i := range want {
		if out.data[i] != want[i] {
			t.Fatalf("mismatch at %d: got %v want %v", i, out.data, want)
		}
	}
}

func TestReadOutOfRangeIDFails(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir, "p")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Write("f", &float64View{data: []float64{1}}); err != nil {
		t.Fatal(err)
	}
	out := &float64View{data: make([]float64, 1)}
	if err := a.Read(FieldID{Name: "f", ID: 99}, out); !fberrors.Is(err, fberrors.ErrArchiveEntryNotFound) {
		t.Fatalf("expected ErrArchiveEntryNotFound, got %v", err)
	}
}

func TestReopenPersistsOffsetTable(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir, "p")
	if err != nil {
		t.Fatal(err)
	}
	id, err := a.Write("f", &float64View{data: []float64{9, 8, 7}})
	if err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir, "p")
	if err != nil {
		t.Fatal(err)
	}
	out := &float64View{data: make([]float64, 3)}
	if err := reopened.Read(id, out); err != nil {
		t.Fatal(err)
	}
	if out.data[0] != 9 || out.data[1] != 8 || out.data[2] != 7 {
		t.Fatalf("unexpected values after reopen: %v", out.data)
	}
}

func TestAdoptLegacyEntryRejectsNonzeroFirstOffset(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir, "p")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.AdoptLegacyEntry("f", 16, "deadbeef"); !fberrors.Is(err, fberrors.ErrMetadataCorrupt) {
		t.Fatalf("expected ErrMetadataCorrupt for a nonzero first offset, got %v", err)
	}
}

func TestAdoptLegacyEntryRejectsZeroOffsetOnAppend(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir, "p")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.AdoptLegacyEntry("f", 0, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.AdoptLegacyEntry("f", 0, "second"); !fberrors.Is(err, fberrors.ErrMetadataCorrupt) {
		t.Fatalf("expected ErrMetadataCorrupt for a second entry at offset 0, got %v", err)
	}
}

func TestAdoptLegacyEntryDedupsByChecksum(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir, "p")
	if err != nil {
		t.Fatal(err)
	}
	id0, err := a.AdoptLegacyEntry("f", 0, "samesum")
	if err != nil {
		t.Fatal(err)
	}
	id1, err := a.AdoptLegacyEntry("f", 16, "samesum")
	if err != nil {
		t.Fatal(err)
	}
	if id0 != id1 {
		t.Fatalf("expected dedup by checksum regardless of reported offset, got %d and %d", id0, id1)
	}
}

func TestEmptyPayloadIsPermitted(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir, "p")
	if err != nil {
		t.Fatal(err)
	}
	id, err := a.Write("f", &float64View{data: nil})
	if err != nil {
		t.Fatal(err)
	}
	if id.ID != 0 {
		t.Fatalf("expected id 0 for first write, got %d", id.ID)
	}
}
