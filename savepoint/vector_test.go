package savepoint

import (
	"testing"

	"github.com/serialarch/fieldarchive/archive"
	fberrors "github.com/serialarch/fieldarchive/errors"
	"github.com/serialarch/fieldarchive/metainfo"
)

func TestInsertIsIdempotentByEquality(t *testing.T) {
	v := New()
	sp1 := New_(t, "s", map[string]int32{"step": 1})
	sp2 := New_(t, "s", map[string]int32{"step": 1})

	idx1 := v.Insert(sp1)
	idx2 := v.Insert(sp2)
	if idx1 != idx2 {
		t.Fatalf("expected equal savepoints to share an index, got %d and %d", idx1, idx2)
	}
	if v.Len() != 1 {
		t.Fatalf("expected single entry, got %d", v.Len())
	}
}

func TestAddFieldRejectsDuplicate(t *testing.T) {
	v := New()
	idx := v.Insert(New_(t, "s", nil))
	if err := v.AddField(idx, "f", archive.FieldID{Name: "f", ID: 0}); err != nil {
		t.Fatal(err)
	}
	if err := v.AddField(idx, "f", archive.FieldID{Name: "f", ID: 1}); !fberrors.Is(err, fberrors.ErrFieldAlreadyAtSavepoint) {
		t.Fatalf("expected ErrFieldAlreadyAtSavepoint, got %v", err)
	}
}

func TestGetFieldIDMisses(t *testing.T) {
	v := New()
	idx := v.Insert(New_(t, "s", nil))
	if _, err := v.GetFieldID(idx, "missing"); !fberrors.Is(err, fberrors.ErrFieldNotAtSavepoint) {
		t.Fatalf("expected ErrFieldNotAtSavepoint, got %v", err)
	}
	if _, err := v.GetFieldID(99, "f"); !fberrors.Is(err, fberrors.ErrSavepointNotFound) {
		t.Fatalf("expected ErrSavepointNotFound, got %v", err)
	}
}

func TestVectorJSONRoundTripPreservesIndexOrder(t *testing.T) {
	v := New()
	i0 := v.Insert(New_(t, "s0", nil))
	i1 := v.Insert(New_(t, "s1", nil))
	v.AddField(i0, "f", archive.FieldID{Name: "f", ID: 0})
	v.AddField(i1, "f", archive.FieldID{Name: "f", ID: 0})
	v.AddField(i1, "g", archive.FieldID{Name: "g", ID: 3})

	data, err := v.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}

	got := New()
	if err := got.UnmarshalJSON(data); err != nil {
		t.Fatal(err)
	}
	if got.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", got.Len())
	}
	sp0, _ := got.At(0)
	sp1, _ := got.At(1)
	if sp0.Name != "s0" || sp1.Name != "s1" {
		t.Fatalf("expected index order preserved, got %q then %q", sp0.Name, sp1.Name)
	}
	fid, err := got.GetFieldID(1, "g")
	if err != nil {
		t.Fatal(err)
	}
	if fid.ID != 3 {
		t.Fatalf("expected id 3, got %d", fid.ID)
	}
}

func TestVectorJSONRoundTripPreservesFieldOrder(t *testing.T) {
	v := New()
	idx := v.Insert(New_(t, "s0", nil))
	v.AddField(idx, "zeta", archive.FieldID{Name: "zeta", ID: 0})
	v.AddField(idx, "alpha", archive.FieldID{Name: "alpha", ID: 1})
	v.AddField(idx, "mu", archive.FieldID{Name: "mu", ID: 2})

	data, err := v.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}

	got := New()
	if err := got.UnmarshalJSON(data); err != nil {
		t.Fatal(err)
	}
	want := []string{"zeta", "alpha", "mu"}
	if fields := got.FieldsAt(0); len(fields) != len(want) {
		t.Fatalf("expected %v, got %v", want, fields)
	} else {
		for i := range want {
			if fields[i] != want[i] {
				t.Fatalf("expected write order %v, got %v (alphabetical would be zeta<alpha<mu reordered)", want, fields)
			}
		}
	}
}

func New_(t *testing.T, name string, intMeta map[string]int32) Savepoint {
	t.Helper()
	m := metainfo.New()
	for k, val := range intMeta {
		m.Insert(k, metainfo.NewInt32(val))
	}
	return New(name, m)
}
