package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"

	fberrors "github.com/serialarch/fieldarchive/errors"
	"github.com/serialarch/fieldarchive/internal/checksum"
	"github.com/serialarch/fieldarchive/internal/logging"
)

const archiveName = "Binary"
const archiveVersion = 1

// offsetEntry is one (offset, checksum) record of a field's
// FieldOffsetTable, as persisted in ArchiveMetaData-<prefix>.json.
type offsetEntry struct {
	Offset   int64  `json:"offset"`
	Checksum string `json:"checksum"`
}

// fieldOffsetTable is a field's ordered offset/checksum records plus an
// in-memory checksum -> index accelerator. Only entries is persisted; the
// index is rebuilt on load, the way the teacher's SSManager rebuilds its
// level list from a manifest rather than persisting a lookup structure.
type fieldOffsetTable struct {
	entries    []offsetEntry
	byChecksum map[string]int
}

func newFieldOffsetTable() *fieldOffsetTable {
	return &fieldOffsetTable{byChecksum: make(map[string]int)}
}

func (t *fieldOffsetTable) find(sum string) (int, bool) {
	id, ok := t.byChecksum[sum]
	return id, ok
}

func (t *fieldOffsetTable) append(offset int64, sum string) int {
	id := len(t.entries)
	t.entries = append(t.entries, offsetEntry{Offset: offset, Checksum: sum})
	t.byChecksum[sum] = id
	return id
}

// BinaryArchive (BA) is the reference Archive implementation: one
// append-only data file per field (D/P_<fieldname>.dat), with a per-field
// offset/checksum table persisted alongside in
// D/ArchiveMetaData-P.json. Grounded on memtable/wal.go's append-only,
// mutex-guarded file writer, generalized from "one WAL of key/value
// records" to "one data file of content-addressed payloads" per field.
type BinaryArchive struct {
	mu     sync.Mutex
	dir    string
	prefix string
	tables map[string]*fieldOffsetTable
	order  []string
	log    *logger.Logger
}

// Option configures a BinaryArchive at construction.
type Option func(*BinaryArchive)

// WithLogger overrides the archive's logger (defaults to logging.L).
func WithLogger(l *logger.Logger) Option {
	return func(a *BinaryArchive) { a.log = l }
}

// Open loads (or initializes) the archive metadata document for prefix in
// dir. It does not create dir; callers (the serializer) are responsible for
// directory lifecycle per spec.md §4.5's Open modes.
func Open(dir, prefix string, opts ...Option) (*BinaryArchive, error) {
	a := &BinaryArchive{
		dir:    dir,
		prefix: prefix,
		tables: make(map[string]*fieldOffsetTable),
		log:    logging.L,
	}
	for _, o := range opts {
		o(a)
	}

	path := a.metadataPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return a, nil
	}
	if err != nil {
		return nil, err
	}
	if err := a.loadFrom(data); err != nil {
		return nil, fmt.Errorf("archive: %w: %v", fberrors.ErrMetadataCorrupt, err)
	}
	return a, nil
}

func (a *BinaryArchive) metadataPath() string {
	return filepath.Join(a.dir, fmt.Sprintf("ArchiveMetaData-%s.json", a.prefix))
}

func (a *BinaryArchive) dataPath(field string) string {
	return filepath.Join(a.dir, fmt.Sprintf("%s_%s.dat", a.prefix, field))
}

type jsonDocument struct {
	ArchiveName       string                   `json:"archive_name"`
	ArchiveVersion    int                      `json:"archive_version"`
	ChecksumAlgorithm string                   `json:"checksum_algorithm"`
	FieldsTable       map[string][]offsetEntry `json:"fields_table"`
}

func (a *BinaryArchive) loadFrom(data []byte) error {
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.ChecksumAlgorithm != "" && doc.ChecksumAlgorithm != checksum.Algorithm {
		return fmt.Errorf("archive metadata uses checksum algorithm %q, this build only trusts %q",
			doc.ChecksumAlgorithm, checksum.Algorithm)
	}

	a.tables = make(map[string]*fieldOffsetTable, len(doc.FieldsTable))
	a.order = nil
	for name, entries := range doc.FieldsTable {
		t := newFieldOffsetTable()
		for _, e := range entries {
			t.append(e.Offset, e.Checksum)
		}
		a.tables[name] = t
		a.order = append(a.order, name)
	}

	return a.verifyFileLengths()
}

// verifyFileLengths enforces spec.md §9 Open Question (c): a data file
// shorter than its highest referenced offset+payload_size is corrupt.
// Payload size for the last entry of each field is not separately recorded
// (only the checksum and offset are), so this check is necessarily a
// weaker, offset-only bound: the file must at least reach the last
// recorded offset.
func (a *BinaryArchive) verifyFileLengths() error {
	for name, t := range a.tables {
		if len(t.entries) == 0 {
			continue
		}
		last := t.entries[len(t.entries)-1]
		info, err := os.Stat(a.dataPath(name))
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		if info.Size() < last.Offset {
			return fmt.Errorf("field %q: data file shorter than last referenced offset", name)
		}
	}
	return nil
}

// persist writes the archive metadata document atomically: write to a
// sibling temp file, flush, rename over the target (spec.md §5).
func (a *BinaryArchive) persist() error {
	fieldsTable := make(map[string][]offsetEntry, len(a.tables))
	for name, t := range a.tables {
		fieldsTable[name] = t.entries
	}
	doc := jsonDocument{
		ArchiveName:       archiveName,
		ArchiveVersion:    archiveVersion,
		ChecksumAlgorithm: checksum.Algorithm,
		FieldsTable:       fieldsTable,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp := a.metadataPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "archive: write metadata document")
	}
	if err := os.Rename(tmp, a.metadataPath()); err != nil {
		return errors.Wrap(err, "archive: rename metadata document into place")
	}
	return nil
}

// Write implements Archive.Write per spec.md §4.4.
func (a *BinaryArchive) Write(name string, view View) (FieldID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf := make([]byte, view.ByteSize())
	if err := view.WriteTo(buf); err != nil {
		return FieldID{}, err
	}
	sum := checksum.Sum(buf)

	table, ok := a.tables[name]
	if !ok {
		table = newFieldOffsetTable()
		a.tables[name] = table
		a.order = append(a.order, name)
	}

	if id, found := table.find(sum); found {
		a.log.WithFields(logger.Fields{"field": name, "id": id}).Debug("archive: dedup hit, skipping write")
		return FieldID{Name: name, ID: id}, nil
	}

	f, err := os.OpenFile(a.dataPath(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return FieldID{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FieldID{}, err
	}
	offset := info.Size()

	if _, err := f.Write(buf); err != nil {
		return FieldID{}, err
	}

	id := table.append(offset, sum)
	if err := a.persist(); err != nil {
		return FieldID{}, err
	}

	a.log.WithFields(logger.Fields{"field": name, "id": id, "bytes": len(buf)}).Debug("archive: wrote new payload")
	return FieldID{Name: name, ID: id}, nil
}

// Read implements Archive.Read per spec.md §4.4.
func (a *BinaryArchive) Read(id FieldID, view View) error {
	a.mu.Lock()
	table, ok := a.tables[id.Name]
	a.mu.Unlock()
	if !ok || id.ID < 0 || id.ID >= len(table.entries) {
		return fberrors.ErrArchiveEntryNotFound
	}
	entry := table.entries[id.ID]

	f, err := os.Open(a.dataPath(id.Name))
	if err != nil {
		return err
	}
	defer f.Close()

	size := view.ByteSize()
	buf := make([]byte, size)
	n, err := f.ReadAt(buf, entry.Offset)
	if n < size {
		if err != nil {
			return fmt.Errorf("%w: %v", fberrors.ErrShortRead, err)
		}
		return fberrors.ErrShortRead
	}

	if got := checksum.Sum(buf); got != entry.Checksum {
		return fberrors.ErrChecksumMismatch
	}

	return view.ReadFrom(buf)
}

// Clear implements Archive.Clear per spec.md §4.4: truncate every per-field
// data file and empty its offset table.
func (a *BinaryArchive) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, name := range a.order {
		if err := os.Truncate(a.dataPath(name), 0); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	a.tables = make(map[string]*fieldOffsetTable)
	a.order = nil
	return a.persist()
}

// AdoptLegacyEntry records a pre-existing (offset, checksum) pair read back
// from a legacy OffsetTable (spec.md §4.6), without writing any payload
// bytes — the data file already holds them from before the upgrade. A
// checksum already present in the field's table is deduplicated exactly
// like Write; otherwise the pair is appended as a new entry, after asserting
// it is well-formed per spec.md §4.6 step 4: a field's first entry must
// start at offset 0, and any entry appended after it must not.
func (a *BinaryArchive) AdoptLegacyEntry(name string, offset int64, sum string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	table, ok := a.tables[name]
	if !ok {
		table = newFieldOffsetTable()
		a.tables[name] = table
		a.order = append(a.order, name)
	}
	if id, found := table.find(sum); found {
		return id, nil
	}
	if len(table.entries) == 0 {
		if offset != 0 {
			return 0, fmt.Errorf("%w: field %q: first offset-table entry must start at offset 0, got %d", fberrors.ErrMetadataCorrupt, name, offset)
		}
	} else if offset == 0 {
		return 0, fmt.Errorf("%w: field %q: appended offset-table entry must not start at offset 0", fberrors.ErrMetadataCorrupt, name)
	}
	return table.append(offset, sum), nil
}

// Persist exposes persist for callers outside the package that assemble an
// archive's offset tables incrementally (the legacy upgrade path) and need
// to flush once at the end rather than after every entry.
func (a *BinaryArchive) Persist() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.persist()
}

// Stats implements Archive.Stats.
func (a *BinaryArchive) Stats(field string) (int, int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	table, ok := a.tables[field]
	if !ok {
		return 0, 0, fberrors.ErrArchiveEntryNotFound
	}
	info, err := os.Stat(a.dataPath(field))
	if err != nil {
		if os.IsNotExist(err) {
			return len(table.entries), 0, nil
		}
		return 0, 0, err
	}
	return len(table.entries), info.Size(), nil
}

var _ Archive = (*BinaryArchive)(nil)
