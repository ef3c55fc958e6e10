// Package errors defines the sentinel error taxonomy the engine reports to
// its callers. Each condition named below is returned as its sentinel
// (possibly wrapped with fmt.Errorf's %w for context) so callers can branch
// with the standard library's errors.Is / errors.As. There is no sentinel for
// filesystem failures: those are returned as the underlying OS error, in some
// places wrapped with github.com/pkg/errors for context.
package errors

import "errors"

// Metainfo map errors.
var (
	ErrKeyNotFound = errors.New("metainfo: key not found")
	ErrTypeMismatch = errors.New("metainfo: type mismatch")
)

// Field map errors.
var (
	ErrFieldAlreadyRegisteredDifferently = errors.New("field: already registered with a different descriptor")
)

// Savepoint vector errors.
var (
	ErrFieldAlreadyAtSavepoint = errors.New("savepoint: field already recorded at this savepoint")
	ErrSavepointNotFound       = errors.New("savepoint: not found")
	ErrFieldNotAtSavepoint     = errors.New("savepoint: field not recorded at this savepoint")
)

// Archive errors.
var (
	ErrArchiveEntryNotFound = errors.New("archive: field id out of range")
	ErrShortRead            = errors.New("archive: short read")
	ErrChecksumMismatch     = errors.New("archive: checksum mismatch")
)

// Serializer mode and shape errors.
var (
	ErrSerializerNotWritable = errors.New("serializer: not writable in this mode")
	ErrSerializerNotReadable = errors.New("serializer: not readable in this mode")
	ErrDirectoryMissing      = errors.New("serializer: archive directory missing")
	ErrMetadataNotFound      = errors.New("serializer: metadata document not found")
	ErrMetadataCorrupt       = errors.New("serializer: metadata document corrupt")
	ErrVersionMismatch       = errors.New("serializer: schema version incompatible")
	ErrPrefixMismatch        = errors.New("serializer: archive prefix mismatch")
	ErrFieldNotRegistered    = errors.New("serializer: field not registered")
	ErrShapeMismatch         = errors.New("serializer: storage view shape mismatch")
)

// Legacy upgrade errors.
var (
	ErrUpgradeReadOnly              = errors.New("upgrade: legacy archives may only be opened for reading")
	ErrUpgradeTypeInferenceFailure  = errors.New("upgrade: could not infer metainfo type")
)

// Is and As are re-exported so callers need only import this package when
// they want to branch on a sentinel without also importing the standard
// library errors package.
var (
	Is = errors.Is
	As = errors.As
)
