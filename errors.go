package zipvault

import "errors"

// Structural errors indicate the byte source does not contain a record
// where one is required, or a record's fields are internally inconsistent.
var (
	// ErrMissingEndOfCentralDirectoryRecord is returned when no EOCD record
	// (or, for an empty archive, only a degenerate one) can be located
	// within the final search window of the source.
	ErrMissingEndOfCentralDirectoryRecord = errors.New("zipvault: end of central directory record not found")

	// ErrLocalHeaderNotFound is returned when the byte range implied by a
	// central directory entry's offset does not begin with a valid local
	// file header signature.
	ErrLocalHeaderNotFound = errors.New("zipvault: local file header not found at expected offset")

	// ErrInvalidCompressionMethod is returned for a compression method
	// other than Stored (0) or Deflate (8).
	ErrInvalidCompressionMethod = errors.New("zipvault: unsupported compression method")

	// ErrInvalidEntryPath is returned when an entry name is empty or contains
	// a NUL byte, or when extracting it would place it outside the
	// destination directory.
	ErrInvalidEntryPath = errors.New("zipvault: invalid entry path")

	// ErrInvalidEntrySize is returned when a central directory entry holds a
	// ZIP64 sentinel in a size, offset or disk-number field but its ZIP64
	// extra field is missing or too short to carry the 64-bit value.
	ErrInvalidEntrySize = errors.New("zipvault: inconsistent entry size fields")

	// ErrInvalidCentralDirectorySize is returned when the EOCD's reported
	// central directory size does not fit within the source.
	ErrInvalidCentralDirectorySize = errors.New("zipvault: invalid central directory size")

	// ErrInvalidCentralDirectoryOffset is returned when the EOCD's reported
	// central directory offset falls outside the source.
	ErrInvalidCentralDirectoryOffset = errors.New("zipvault: invalid central directory offset")

	// ErrInvalidCentralDirectoryEntryCount is returned when the entry count
	// in the classic EOCD disagrees with the one in the ZIP64 EOCD record. A
	// central directory that ends before the declared count is reached is not
	// an error: iteration stops and the entries decoded so far are returned.
	ErrInvalidCentralDirectoryEntryCount = errors.New("zipvault: central directory entry count mismatch")

	// ErrInvalidLocalHeaderSize is returned when a local file header's fixed
	// part cannot be read in full, or when rewriting a header with an entry's
	// final sizes would change its length.
	ErrInvalidLocalHeaderSize = errors.New("zipvault: invalid local file header size")

	// ErrInvalidLocalHeaderDataOffset is returned when the computed start of
	// an entry's data falls outside the source or overlaps the next entry.
	ErrInvalidLocalHeaderDataOffset = errors.New("zipvault: invalid local file header data offset")
)

// Integrity errors indicate the archive parses but its content fails
// verification against the metadata describing it.
var (
	// ErrInvalidCRC32 is returned when a decompressed entry's computed
	// CRC-32 does not match the value recorded in its header.
	ErrInvalidCRC32 = errors.New("zipvault: crc-32 checksum mismatch")

	// ErrCorruptedData is returned when an entry's compressed data cannot be
	// decoded, or the source ends before it has been read in full. The
	// decompressed length is not compared with the declared size.
	ErrCorruptedData = errors.New("zipvault: corrupted entry data")
)

// Policy errors indicate a caller-facing precondition was not met; the
// source bytes may be perfectly well-formed.
var (
	// ErrUnreadableArchive is returned by Open in read or update mode when
	// the archive file does not exist.
	ErrUnreadableArchive = errors.New("zipvault: archive does not support read access")

	// ErrUnwritableArchive is returned when an operation requiring write
	// access is attempted on a source or access mode that does not support it.
	ErrUnwritableArchive = errors.New("zipvault: archive does not support write access")

	// ErrInvalidBufferSize is returned when a caller-supplied buffer or
	// chunk size is zero or negative.
	ErrInvalidBufferSize = errors.New("zipvault: invalid buffer size")

	// ErrRangeOutOfBounds is returned when a requested byte range falls
	// outside an entry's uncompressed data.
	ErrRangeOutOfBounds = errors.New("zipvault: requested range out of bounds")

	// ErrEntryIsNotAFile is returned when extraction of file content is
	// requested for a directory or symlink entry.
	ErrEntryIsNotAFile = errors.New("zipvault: entry is not a regular file")

	// ErrUncontainedSymlink is returned when a symlink entry's resolved
	// target would escape the extraction destination and the caller has not
	// opted into allowing it.
	ErrUncontainedSymlink = errors.New("zipvault: symlink target escapes destination directory")

	// ErrFileNotFound is returned when a requested entry name does not
	// exist in the archive.
	ErrFileNotFound = errors.New("zipvault: entry not found")

	// ErrDuplicateEntry is returned when adding an entry whose name already
	// exists in the archive.
	ErrDuplicateEntry = errors.New("zipvault: duplicate entry name")

	// ErrFilenameTooLong is returned when an entry name exceeds 65535 bytes
	// once UTF-8 encoded.
	ErrFilenameTooLong = errors.New("zipvault: entry name too long")

	// ErrCommentTooLong is returned when an archive or entry comment
	// exceeds 65535 bytes.
	ErrCommentTooLong = errors.New("zipvault: comment too long")

	// ErrExtraFieldTooLong is returned when the encoded extra field for an
	// entry exceeds 65535 bytes.
	ErrExtraFieldTooLong = errors.New("zipvault: extra field too long")
)

// Lifecycle errors describe the outcome of a cooperative cancellation.
var (
	// ErrCancelledOperation is returned when a caller-supplied Progress
	// token was cancelled before an add, extract, or remove completed. Any
	// partially written bytes have been rolled back.
	ErrCancelledOperation = errors.New("zipvault: operation cancelled")
)
