package serializer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	fberrors "github.com/serialarch/fieldarchive/errors"
	"github.com/serialarch/fieldarchive/field"
	"github.com/serialarch/fieldarchive/internal/checksum"
	"github.com/serialarch/fieldarchive/metainfo"
	"github.com/serialarch/fieldarchive/savepoint"
	"github.com/serialarch/fieldarchive/storageview"
)

func tempDir(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "archive")
}

func sp(name string, step int32) savepoint.Savepoint {
	m := metainfo.New()
	m.Insert("step", metainfo.NewInt32(step))
	return savepoint.New(name, m)
}

func TestRoundTripWriteThenRead(t *testing.T) {
	dir := tempDir(t)

	w, err := Open(dir, "field", Write)
	require.NoError(t, err)
	fm, err := field.New(metainfo.Float64, []int{2, 2}, nil)
	require.NoError(t, err)
	require.NoError(t, w.RegisterField("u", fm))

	view := storageview.NewFloat64View([]int{2, 2}, []float64{1, 2, 3, 4})
	require.NoError(t, w.Write("u", sp("s0", 0), view))
	require.NoError(t, w.Close())

	r, err := Open(dir, "field", Read)
	require.NoError(t, err)
	out := storageview.NewFloat64View([]int{2, 2}, nil)
	require.NoError(t, r.Read("u", sp("s0", 0), out))
	require.Equal(t, []float64{1, 2, 3, 4}, out.Data)
}

func TestWriteDedupesAcrossSavepoints(t *testing.T) {
	dir := tempDir(t)

	w, err := Open(dir, "field", Write)
	require.NoError(t, err)
	fm, _ := field.New(metainfo.Float64, []int{2}, nil)
	require.NoError(t, w.RegisterField("u", fm))

	view := storageview.NewFloat64View([]int{2}, []float64{1, 2})
	require.NoError(t, w.Write("u", sp("s0", 0), view))
	require.NoError(t, w.Write("u", sp("s1", 1), view))

	idx0 := w.savepoints.Find(sp("s0", 0))
	idx1 := w.savepoints.Find(sp("s1", 1))
	fid0, err := w.savepoints.GetFieldID(idx0, "u")
	require.NoError(t, err)
	fid1, err := w.savepoints.GetFieldID(idx1, "u")
	require.NoError(t, err)
	require.Equal(t, fid0.ID, fid1.ID, "identical content must dedup to the same id")
}

func TestWriteDistinctContentDistinctIDs(t *testing.T) {
	dir := tempDir(t)

	w, err := Open(dir, "field", Write)
	require.NoError(t, err)
	fm, _ := field.New(metainfo.Float64, []int{2}, nil)
	require.NoError(t, w.RegisterField("u", fm))

	v0 := storageview.NewFloat64View([]int{2}, []float64{1, 2})
	v1 := storageview.NewFloat64View([]int{2}, []float64{3, 4})
	require.NoError(t, w.Write("u", sp("s0", 0), v0))
	require.NoError(t, w.Write("u", sp("s1", 1), v1))

	idx0 := w.savepoints.Find(sp("s0", 0))
	idx1 := w.savepoints.Find(sp("s1", 1))
	fid0, _ := w.savepoints.GetFieldID(idx0, "u")
	fid1, _ := w.savepoints.GetFieldID(idx1, "u")
	require.NotEqual(t, fid0.ID, fid1.ID, "distinct content must get distinct ids")
}

func TestWriteRejectsDuplicateFieldAtSamesavepoint(t *testing.T) {
	dir := tempDir(t)

	w, err := Open(dir, "field", Write)
	require.NoError(t, err)
	fm, _ := field.New(metainfo.Float64, []int{2}, nil)
	require.NoError(t, w.RegisterField("u", fm))

	view := storageview.NewFloat64View([]int{2}, []float64{1, 2})
	s0 := sp("s0", 0)
	require.NoError(t, w.Write("u", s0, view))

	err = w.Write("u", s0, view)
	require.ErrorIs(t, err, fberrors.ErrFieldAlreadyAtSavepoint)

	idx := w.savepoints.Find(s0)
	require.Len(t, w.FieldsAt(idx), 1, "rejected duplicate write must not mutate state")
}

func TestVersionMismatchRejected(t *testing.T) {
	dir := tempDir(t)
	require.NoError(t, os.MkdirAll(dir, 0755))

	doc := `{"schema_version": 200, "prefix": "field", "field_map": {}}`
	path := filepath.Join(dir, "MetaData-field.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	_, err := Open(dir, "field", Read)
	require.ErrorIs(t, err, fberrors.ErrVersionMismatch)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, doc, string(data), "a rejected open must not mutate the on-disk document")
}

func TestLegacyUpgrade(t *testing.T) {
	dir := tempDir(t)
	require.NoError(t, os.MkdirAll(dir, 0755))

	// Hand-write a field's data file the way the Binary Archive would have
	// under the legacy format: a single 16-byte float64[2] payload.
	payload := []byte{0, 0, 0, 0, 0, 0, 240, 63, 0, 0, 0, 0, 0, 0, 0, 64} // [1.0, 2.0]
	require.NoError(t, os.WriteFile(filepath.Join(dir, "field_u.dat"), payload, 0644))

	sum := checksum.Sum(payload)
	legacy := `{
		"FieldsTable": [
			{"__name": "u", "__elementtype": "double", "__isize": 2, "__jsize": 1, "__ksize": 1}
		],
		"GlobalMetainfo": {},
		"OffsetTable": [
			{"__name": "s0", "step": 0, "__offsets": {"u": [0, "` + sum + `"]}}
		]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "field.json"), []byte(legacy), 0644))

	r, err := Open(dir, "field", Read)
	require.NoError(t, err)
	require.Equal(t, []string{"u"}, r.FieldNames())

	sps := r.Savepoints()
	require.Len(t, sps, 1)
	require.Equal(t, "s0", sps[0].Name)

	out := storageview.NewFloat64View([]int{2, 1, 1}, nil)
	require.NoError(t, r.Read("u", sps[0], out))
	require.Equal(t, []float64{1, 2}, out.Data)

	_, err = os.Stat(filepath.Join(dir, "MetaData-field.json"))
	require.NoError(t, err, "expected upgraded document to be persisted")
}

func TestAppendingToLegacyArchiveRejected(t *testing.T) {
	dir := tempDir(t)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "field.json"), []byte(`{"FieldsTable":[],"GlobalMetainfo":{},"OffsetTable":[]}`), 0644))

	_, err := Open(dir, "field", Append)
	require.ErrorIs(t, err, fberrors.ErrUpgradeReadOnly)
}

func TestOpeningLegacyArchiveForWriteRejected(t *testing.T) {
	dir := tempDir(t)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "field.json"), []byte(`{"FieldsTable":[],"GlobalMetainfo":{},"OffsetTable":[]}`), 0644))

	_, err := Open(dir, "field", Write)
	require.ErrorIs(t, err, fberrors.ErrUpgradeReadOnly)
}
