package metainfo

import (
	"encoding/json"
	"testing"

	fberrors "github.com/serialarch/fieldarchive/errors"
)

func TestInsertRejectsDuplicate(t *testing.T) {
	m := New()
	if !m.Insert("a", NewInt32(1)) {
		t.Fatalf("expected first insert to succeed")
	}
	if m.Insert("a", NewInt32(2)) {
		t.Fatalf("expected duplicate insert to be rejected, not throw")
	}
	v, err := m.At("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := v.Int32(); got != 1 {
		t.Fatalf("duplicate insert must not overwrite, got %d", got)
	}
}

func TestAtMissingKey(t *testing.T) {
	m := New()
	if _, err := m.At("missing"); !fberrors.Is(err, fberrors.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestOverwriteRejectsTypeChange(t *testing.T) {
	m := New()
	m.Insert("a", NewInt32(1))
	if err := m.Overwrite("a", NewFloat64(1.5)); !fberrors.Is(err, fberrors.ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
	if err := m.Overwrite("a", NewInt32(2)); err != nil {
		t.Fatalf("same-tag overwrite should succeed: %v", err)
	}
	v, _ := m.At("a")
	if got, _ := v.Int32(); got != 2 {
		t.Fatalf("expected overwritten value 2, got %d", got)
	}
}

func TestEraseIdempotent(t *testing.T) {
	m := New()
	m.Insert("a", NewBool(true))
	m.Erase("a")
	m.Erase("a") // must not panic or error
	if m.Has("a") {
		t.Fatalf("expected a to be erased")
	}
	if m.Size() != 0 {
		t.Fatalf("expected empty map, got size %d", m.Size())
	}
}

func TestNumericWidening(t *testing.T) {
	m := New()
	m.Insert("i", NewInt32(42))

	v, _ := m.At("i")
	if got, err := v.Int64(); err != nil || got != 42 {
		t.Fatalf("Int32 -> Int64 widening failed: %v %v", got, err)
	}
	if got, err := v.Float64(); err != nil || got != 42.0 {
		t.Fatalf("Int32 -> Float64 widening failed: %v %v", got, err)
	}
	if got, err := v.Float32(); err != nil || got != 42.0 {
		t.Fatalf("Int32 -> Float32 widening failed: %v %v", got, err)
	}
}

func TestNumericWideningRejectsInexact(t *testing.T) {
	// 16777217 does not round-trip through float32 exactly.
	v := NewInt32(16777217)
	if _, err := v.Float32(); !fberrors.Is(err, fberrors.ErrTypeMismatch) {
		t.Fatalf("expected inexact widening to be rejected, got err=%v", err)
	}
}

func TestRoundTripPreservesOrderAndTags(t *testing.T) {
	m := New()
	m.Insert("z", NewString("last"))
	m.Insert("a", NewInt32(7))
	m.Insert("m", NewFloat64Array([]float64{1, 2, 3}))

	data, err := m.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	got, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}

	if !got.Equal(m) {
		t.Fatalf("round-tripped map does not equal original")
	}
	wantKeys := []string{"z", "a", "m"}
	gotKeys := got.Keys()
	if len(gotKeys) != len(wantKeys) {
		t.Fatalf("key order mismatch: got %v want %v", gotKeys, wantKeys)
	}
	for i := range wantKeys {
		if gotKeys[i] != wantKeys[i] {
			t.Fatalf("key order mismatch at %d: got %v want %v", i, gotKeys, wantKeys)
		}
	}
}

func TestEqualIgnoresKeyOrder(t *testing.T) {
	a := New()
	a.Insert("x", NewInt32(1))
	a.Insert("y", NewInt32(2))

	b := New()
	b.Insert("y", NewInt32(2))
	b.Insert("x", NewInt32(1))

	if !a.Equal(b) {
		t.Fatalf("expected maps with same keys in different order to be equal")
	}
}

func TestMarshalValueArrayTag(t *testing.T) {
	data, err := marshalValue(NewInt32Array([]int32{1, 2, 3}))
	if err != nil {
		t.Fatalf("marshalValue: %v", err)
	}
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		t.Fatalf("unmarshal pair: %v", err)
	}
	var tag string
	json.Unmarshal(pair[0], &tag)
	if tag != "int32[]" {
		t.Fatalf("expected tag int32[], got %q", tag)
	}
}
