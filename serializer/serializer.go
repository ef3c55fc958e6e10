// Package serializer implements the Serializer Core (S) of spec.md §3/§4.5:
// it composes the global Map, Field Map, Savepoint Vector and Archive,
// enforces the write/read contracts, persists the top-level metadata
// document, and runs the legacy upgrade path.
//
// Grounded on db.go's Engine (a single sync.Mutex-guarded struct composing
// a memtable and an SSTable manager), generalized to compose field.Map +
// savepoint.Vector + archive.BinaryArchive.
package serializer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"

	"github.com/serialarch/fieldarchive/archive"
	fberrors "github.com/serialarch/fieldarchive/errors"
	"github.com/serialarch/fieldarchive/field"
	"github.com/serialarch/fieldarchive/internal/logging"
	"github.com/serialarch/fieldarchive/metainfo"
	"github.com/serialarch/fieldarchive/savepoint"
	"github.com/serialarch/fieldarchive/storageview"
)

// Mode selects how a Serializer may be used, per spec.md §4.5.
type Mode int

const (
	// Read requires the directory and its metadata document to already
	// exist; no mutating operation is permitted afterwards.
	Read Mode = iota
	// Write creates the directory if absent and clears any existing
	// archive state for the prefix, in memory and on disk.
	Write
	// Append requires the directory to exist; metadata is parsed if
	// present, else created empty. Mutating operations are permitted and
	// deduplicate against both pre-existing and newly written content.
	Append
)

func (m Mode) String() string {
	switch m {
	case Read:
		return "Read"
	case Write:
		return "Write"
	case Append:
		return "Append"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Schema version constants: schemaVersion = 100*major + 10*minor + patch,
// per spec.md §6. Compatibility is a major-version match (SPEC_FULL.md §5,
// resolving spec.md §9 Open Question (a)).
const (
	schemaMajor = 1
	schemaMinor = 0
	schemaPatch = 0

	// CurrentSchemaVersion is this library's on-disk schema version.
	CurrentSchemaVersion = 100*schemaMajor + 10*schemaMinor + schemaPatch
)

func versionCompatible(v int) bool {
	return v/100 == schemaMajor
}

// Serializer (S) is the top-level handle a caller opens, writes through,
// and reads from. It is not safe for concurrent use from multiple
// goroutines without external synchronization — the same single-writer
// contract db.go's Engine makes with its own sync.Mutex.
type Serializer struct {
	mu sync.Mutex

	dir    string
	prefix string
	mode   Mode
	log    *logger.Logger

	global     *metainfo.Map
	fields     *field.Map
	savepoints *savepoint.Vector
	arch       *archive.BinaryArchive
}

// Option configures a Serializer at Open time.
type Option func(*options)

type options struct {
	logger *logger.Logger
}

// WithLogger overrides the serializer's logger (defaults to logging.L).
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Open opens (or creates) an archive of prefix in dir under mode, per
// spec.md §4.5.
func Open(dir, prefix string, mode Mode, opts ...Option) (*Serializer, error) {
	o := &options{logger: logging.L}
	for _, opt := range opts {
		opt(o)
	}

	s := &Serializer{
		dir:    dir,
		prefix: prefix,
		mode:   mode,
		log:    o.logger,
	}

	switch mode {
	case Write:
		if _, legacyErr := os.Stat(filepath.Join(dir, fmt.Sprintf("%s.json", prefix))); legacyErr == nil {
			return nil, fberrors.ErrUpgradeReadOnly
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "serializer: create archive directory")
		}
		s.global = metainfo.New()
		s.fields = field.NewMap()
		s.savepoints = savepoint.New()
		arch, err := archive.Open(dir, prefix, archive.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		if err := arch.Clear(); err != nil {
			return nil, err
		}
		s.arch = arch
		if err := s.persistDocument(); err != nil {
			return nil, err
		}

	case Append:
		if !dirExists(dir) {
			return nil, fberrors.ErrDirectoryMissing
		}
		if err := s.loadOrInitAppend(); err != nil {
			return nil, err
		}

	case Read:
		if !dirExists(dir) {
			return nil, fberrors.ErrDirectoryMissing
		}
		if err := s.loadForRead(); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("serializer: unknown mode %v", mode)
	}

	s.log.WithFields(logger.Fields{"dir": dir, "prefix": prefix, "mode": mode.String()}).Info("serializer: opened")
	return s, nil
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

func (s *Serializer) metadataPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("MetaData-%s.json", s.prefix))
}

func (s *Serializer) legacyPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", s.prefix))
}

func (s *Serializer) loadOrInitAppend() error {
	data, err := os.ReadFile(s.metadataPath())
	if os.IsNotExist(err) {
		if _, legacyErr := os.Stat(s.legacyPath()); legacyErr == nil {
			return fberrors.ErrUpgradeReadOnly
		}
		s.global = metainfo.New()
		s.fields = field.NewMap()
		s.savepoints = savepoint.New()
		arch, err := archive.Open(s.dir, s.prefix, archive.WithLogger(s.log))
		if err != nil {
			return err
		}
		s.arch = arch
		return nil
	}
	if err != nil {
		return err
	}
	return s.loadDocument(data)
}

func (s *Serializer) loadForRead() error {
	data, err := os.ReadFile(s.metadataPath())
	if os.IsNotExist(err) {
		if _, legacyErr := os.Stat(s.legacyPath()); legacyErr != nil {
			return fberrors.ErrMetadataNotFound
		}
		return s.runLegacyUpgrade()
	}
	if err != nil {
		return err
	}
	return s.loadDocument(data)
}

// RegisterField registers name with descriptor fm, per spec.md §4.5's
// delegation to FMAP's idempotent-or-reject rule (spec.md §4.2).
func (s *Serializer) RegisterField(name string, fm field.MetaInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == Read {
		return fberrors.ErrSerializerNotWritable
	}
	if err := s.fields.Insert(name, fm); err != nil {
		return err
	}
	return s.persistDocument()
}

// GlobalMeta returns the serializer's attached global Map. In Read mode the
// returned Map must be treated as read-only by the caller (per spec.md §1,
// the engine trusts callers not to mutate a frozen document's attributes).
func (s *Serializer) GlobalMeta() *metainfo.Map { return s.global }

// FieldNames lists registered field names in registration order.
func (s *Serializer) FieldNames() []string { return s.fields.FieldNames() }

// checkStorageView validates name/view against the registered descriptor,
// per spec.md §4.5 steps shared by Write and Read.
func (s *Serializer) checkStorageView(name string, view storageview.View) (field.MetaInfo, error) {
	fm, err := s.fields.Find(name)
	if err != nil {
		return field.MetaInfo{}, fmt.Errorf("%w: %q", fberrors.ErrFieldNotRegistered, name)
	}
	if fm.Type != view.Type() {
		return field.MetaInfo{}, fmt.Errorf("%w: field %q registered as %s, view is %s", fberrors.ErrTypeMismatch, name, fm.Type, view.Type())
	}
	dims := view.Dims()
	if len(dims) != len(fm.Dims) {
		return field.MetaInfo{}, fmt.Errorf("%w: field %q registered with %d dims, view has %d", fberrors.ErrShapeMismatch, name, len(fm.Dims), len(dims))
	}
	for i := range dims {
		if dims[i] != fm.Dims[i] {
			return field.MetaInfo{}, fmt.Errorf("%w: field %q dims %v, view dims %v", fberrors.ErrShapeMismatch, name, fm.Dims, dims)
		}
	}
	return fm, nil
}

// Write implements spec.md §4.5's write(name, sp, view).
func (s *Serializer) Write(name string, sp savepoint.Savepoint, view storageview.View) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != Write && s.mode != Append {
		return fberrors.ErrSerializerNotWritable
	}
	if _, err := s.checkStorageView(name, view); err != nil {
		return err
	}

	idx := s.savepoints.Insert(sp)
	if s.savepoints.HasField(idx, name) {
		return fmt.Errorf("%w: field %q at savepoint %q", fberrors.ErrFieldAlreadyAtSavepoint, name, sp.Name)
	}

	fid, err := s.arch.Write(name, view)
	if err != nil {
		return err
	}
	if err := s.savepoints.AddField(idx, name, fid); err != nil {
		return err
	}

	if err := s.persistDocument(); err != nil {
		return err
	}
	s.log.WithFields(logger.Fields{"field": name, "savepoint": sp.Name}).Debug("serializer: wrote field")
	return nil
}

// Read implements spec.md §4.5's read(name, sp, view).
func (s *Serializer) Read(name string, sp savepoint.Savepoint, view storageview.View) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != Read {
		return fberrors.ErrSerializerNotReadable
	}
	if _, err := s.checkStorageView(name, view); err != nil {
		return err
	}

	idx := s.savepoints.Find(sp)
	if idx == -1 {
		return fmt.Errorf("%w: %q", fberrors.ErrSavepointNotFound, sp.Name)
	}
	fid, err := s.savepoints.GetFieldID(idx, name)
	if err != nil {
		return err
	}
	return s.arch.Read(fid, view)
}

// Savepoints lists the savepoints recorded so far, in stable index order.
func (s *Serializer) Savepoints() []savepoint.Savepoint {
	out := make([]savepoint.Savepoint, s.savepoints.Len())
	for i := range out {
		out[i], _ = s.savepoints.At(i)
	}
	return out
}

// FieldsAt lists the field names recorded at savepoint index idx.
func (s *Serializer) FieldsAt(idx int) []string { return s.savepoints.FieldsAt(idx) }

// Close releases the serializer. The archive and metadata document are
// already durable after every mutating call (spec.md §4.5 step 7), so Close
// has nothing left to flush; it exists for symmetry with the teacher's
// Engine.Close and so callers can `defer s.Close()` uniformly.
func (s *Serializer) Close() error { return nil }
