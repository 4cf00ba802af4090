package zipvault

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"strings"
	"time"

	"github.com/brinkwood/zipvault/internal/format"
	"go.uber.org/zap"
)

// DataProvider supplies an entry's uncompressed bytes to AddEntry, one
// chunk at a time. position is the number of bytes already consumed;
// bufferSize is a hint for how much to return. Returning a zero-length
// slice with a nil error signals end of data.
type DataProvider func(ctx context.Context, position int64, bufferSize int) ([]byte, error)

// addConfig holds the tunables an AddOption can override (§10.1).
type addConfig struct {
	bufferSize        int
	permissions       fs.FileMode
	modTime           time.Time
	compressionMethod CompressionMethod
	comment           string
	progress          *Progress
}

func defaultAddConfig() addConfig {
	return addConfig{
		bufferSize:        defaultBufferSize,
		compressionMethod: CompressionDeflate,
		modTime:           time.Now(),
	}
}

// AddOption mutates the configuration of one AddEntry call.
type AddOption func(*addConfig)

// WithAddBufferSize overrides the default 16 KiB read/write chunk size.
func WithAddBufferSize(n int) AddOption {
	return func(c *addConfig) { c.bufferSize = n }
}

// WithPermissions sets the POSIX permission bits recorded in the entry's
// external file attributes.
func WithPermissions(perm fs.FileMode) AddOption {
	return func(c *addConfig) { c.permissions = perm }
}

// WithModificationTime sets the entry's MS-DOS modification timestamp.
func WithModificationTime(t time.Time) AddOption {
	return func(c *addConfig) { c.modTime = t }
}

// WithCompressionMethod overrides the default (deflate) compression method
// for file entries. Directory and symlink entries always use Stored.
func WithCompressionMethod(m CompressionMethod) AddOption {
	return func(c *addConfig) { c.compressionMethod = m }
}

// WithComment sets the entry's comment field.
func WithComment(comment string) AddOption {
	return func(c *addConfig) { c.comment = comment }
}

// WithAddProgress attaches a cancellation/progress token to the call.
func WithAddProgress(p *Progress) AddOption {
	return func(c *addConfig) { c.progress = p }
}

// deflateOverheadMargin absorbs DEFLATE's small per-block expansion on
// incompressible input, so the upfront ZIP64-reservation decision (made
// from the declared uncompressed size, before compression runs) doesn't
// get caught short by a compressed size that crept past the threshold.
const deflateOverheadMargin = 4096

// addSnapshot captures everything needed to restore the archive's
// pre-operation byte range if AddEntry is cancelled mid-stream (§4.6
// "Cancellation rollback").
type addSnapshot struct {
	startOfCD    int64
	rawCD        []byte
	totalEntries uint64
	cdSize       uint64
	comment      string
}

// AddEntry appends one entry to the archive using the two-phase local file
// header write described in §4.6: a placeholder header, the streamed
// (optionally compressed) data, then a rewrite of the header with the real
// sizes and CRC, followed by the preserved central directory and a fresh
// EOCD.
func (a *Archive) AddEntry(ctx context.Context, path string, entryType EntryType, uncompressedSize int64, provider DataProvider, opts ...AddOption) (Entry, error) {
	cfg := defaultAddConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validateBufferSize(cfg.bufferSize); err != nil {
		return Entry{}, err
	}
	if path == "" {
		return Entry{}, fmt.Errorf("%w: empty path", ErrInvalidEntryPath)
	}
	// Directory entries are identified on decode solely by a trailing slash
	// in the stored name (entry.go's deriveEntryType), the convention every
	// ZIP-writing tool follows; enforce it here so a round trip always
	// reports the type the caller asked for.
	if entryType == EntryTypeDirectory && !strings.HasSuffix(path, "/") {
		path += "/"
	}
	if len(path) > 0xFFFF {
		return Entry{}, ErrFilenameTooLong
	}
	if len(cfg.comment) > 0xFFFF {
		return Entry{}, ErrCommentTooLong
	}

	ws, err := a.requireWritable()
	if err != nil {
		return Entry{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	outcome := outcomeSuccess
	defer func() { a.metrics.observe(operationAdd, outcome, uncompressedSize) }()

	entry, err := a.addEntryLocked(ctx, ws, path, entryType, uncompressedSize, provider, cfg)
	if err != nil {
		if errors.Is(err, ErrCancelledOperation) {
			outcome = outcomeCancelled
		} else {
			outcome = outcomeError
		}
		return Entry{}, err
	}
	return entry, nil
}

func (a *Archive) addEntryLocked(ctx context.Context, ws WritableSource, path string, entryType EntryType, uncompressedSize int64, provider DataProvider, cfg addConfig) (Entry, error) {
	existing, err := a.entriesLocked(ctx)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range existing {
		if e.Path == path {
			return Entry{}, fmt.Errorf("%w: %q", ErrDuplicateEntry, path)
		}
	}

	method := cfg.compressionMethod
	if entryType != EntryTypeFile {
		method = CompressionStored
	}

	startOfCD := int64(a.cdOffset)
	if err := a.source.Seek(ctx, startOfCD); err != nil {
		return Entry{}, err
	}
	rawCD, err := readFull(ctx, a.source, int(a.cdSize))
	if err != nil {
		return Entry{}, err
	}
	snapshot := addSnapshot{
		startOfCD:    startOfCD,
		rawCD:        rawCD,
		totalEntries: a.totalEntries,
		cdSize:       a.cdSize,
		comment:      a.comment,
	}

	cfg.progress.setTotal(uncompressedSize)

	entry, err := a.writeEntry(ctx, ws, path, entryType, uint64(uncompressedSize), method, provider, cfg, snapshot)
	if err != nil {
		rollbackErr := a.rollbackAdd(ctx, ws, snapshot)
		if rollbackErr != nil {
			return Entry{}, fmt.Errorf("%w (rollback also failed: %v)", err, rollbackErr)
		}
		return Entry{}, err
	}

	a.totalEntries++
	a.invalidateCache()

	return entry, nil
}

// writeEntry performs steps 3-7 of §4.6: write the placeholder LFH, stream
// the data, rewrite the LFH with real values, then append the preserved CD
// bytes, the new CDS, and a fresh EOCD.
func (a *Archive) writeEntry(ctx context.Context, ws WritableSource, path string, entryType EntryType, declaredUncompressedSize uint64, method CompressionMethod, provider DataProvider, cfg addConfig, snapshot addSnapshot) (Entry, error) {
	reserveZip64 := declaredUncompressedSize+deflateOverheadMargin >= a.zip64Threshold

	dosDate, dosTime := timeToDOSTime(cfg.modTime)
	lfhStart := snapshot.startOfCD

	lfh := format.LocalFileHeader{
		VersionNeededToExtract: versionNeededFor(reserveZip64),
		GeneralPurposeBitFlag:  utf8Bit,
		CompressionMethod:      uint16(method),
		LastModFileDate:        dosDate,
		LastModFileTime:        dosTime,
		Filename:               path,
	}
	if reserveZip64 {
		lfh.CompressedSize, lfh.UncompressedSize = 0xFFFFFFFF, 0xFFFFFFFF
		lfh.ExtraField = map[uint16][]byte{
			format.Zip64ExtraFieldTag: format.EncodeZip64Extra(format.Zip64Extra{
				HasUncompressed: true,
				HasCompressed:   true,
			}),
		}
	}
	lfhBytes := lfh.Encode()

	if err := ws.Seek(ctx, lfhStart); err != nil {
		return Entry{}, err
	}
	if err := ws.Write(ctx, lfhBytes); err != nil {
		return Entry{}, err
	}

	checksum := crc32.NewIEEE()
	counter := &countingWriter{ctx: ctx, ws: ws}
	compressor, err := NewCompressor(method, counter)
	if err != nil {
		return Entry{}, err
	}

	var position int64
	for {
		if err := checkCancel(cfg.progress); err != nil {
			compressor.Close()
			return Entry{}, err
		}
		chunk, err := provider(ctx, position, cfg.bufferSize)
		if err != nil {
			compressor.Close()
			return Entry{}, fmt.Errorf("data provider: %w", err)
		}
		if len(chunk) == 0 {
			break
		}
		checksum.Write(chunk)
		if _, err := compressor.Write(chunk); err != nil {
			compressor.Close()
			return Entry{}, fmt.Errorf("compress entry data: %w", err)
		}
		position += int64(len(chunk))
		cfg.progress.addDone(int64(len(chunk)))
	}
	if err := compressor.Close(); err != nil {
		return Entry{}, fmt.Errorf("flush compressed data: %w", err)
	}

	producedUncompressed := uint64(position)
	producedCompressed := uint64(counter.n)
	crc := checksum.Sum32()

	lfh.CRC32 = crc
	if reserveZip64 {
		lfh.ExtraField = map[uint16][]byte{
			format.Zip64ExtraFieldTag: format.EncodeZip64Extra(format.Zip64Extra{
				UncompressedSize: producedUncompressed,
				HasUncompressed:  true,
				CompressedSize:   producedCompressed,
				HasCompressed:    true,
			}),
		}
	} else {
		lfh.CompressedSize = uint32(producedCompressed)
		lfh.UncompressedSize = uint32(producedUncompressed)
	}
	lfh2Bytes := lfh.Encode()
	if len(lfh2Bytes) != len(lfhBytes) {
		return Entry{}, fmt.Errorf("%w: local header length changed from %d to %d bytes on rewrite", ErrInvalidLocalHeaderSize, len(lfhBytes), len(lfh2Bytes))
	}
	if err := ws.Seek(ctx, lfhStart); err != nil {
		return Entry{}, err
	}
	if err := ws.Write(ctx, lfh2Bytes); err != nil {
		return Entry{}, err
	}

	endOfData := lfhStart + int64(len(lfhBytes)) + int64(producedCompressed)
	if err := ws.Seek(ctx, endOfData); err != nil {
		return Entry{}, err
	}
	if err := ws.Write(ctx, snapshot.rawCD); err != nil {
		return Entry{}, err
	}

	perm := cfg.permissions
	if perm == 0 {
		perm = defaultFilePermissions
		if entryType == EntryTypeDirectory {
			perm = defaultDirPermissions
		}
	}
	externalAttrs := externalAttributesFor(entryType, perm)
	u32, c32, off32, extra, isZip64 := promoteCentralDirectoryFields(producedUncompressed, producedCompressed, uint64(lfhStart), a.zip64Threshold)
	if isZip64 {
		a.logger.Debug("zip64 promoted", zap.String("path", path))
	}

	cds := format.CentralDirectory{
		VersionMadeBy:          versionMadeBy,
		VersionNeededToExtract: versionNeededFor(isZip64),
		GeneralPurposeBitFlag:  utf8Bit,
		CompressionMethod:      uint16(method),
		LastModFileDate:        dosDate,
		LastModFileTime:        dosTime,
		CRC32:                  crc,
		CompressedSize:         c32,
		UncompressedSize:       u32,
		ExternalFileAttributes: externalAttrs,
		LocalHeaderOffset:      off32,
		Filename:               path,
		ExtraField:             extra,
		Comment:                cfg.comment,
	}
	cdsBytes := cds.Encode()
	if err := ws.Write(ctx, cdsBytes); err != nil {
		return Entry{}, err
	}

	newCDSize := snapshot.cdSize + uint64(len(cdsBytes))
	newTotal := snapshot.totalEntries + 1
	newCDOffset := uint64(endOfData)

	if err := writeCentralDirectoryTail(ctx, ws, newTotal, newCDOffset, newCDSize, snapshot.comment, a.zip64Threshold); err != nil {
		return Entry{}, err
	}

	finalLength := ws.Position()
	if err := ws.Truncate(ctx, finalLength); err != nil {
		return Entry{}, err
	}
	if err := ws.Flush(ctx); err != nil {
		return Entry{}, err
	}

	a.cdOffset = newCDOffset
	a.cdSize = newCDSize

	entry, err := entryFromCentralDirectory(cds)
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// rollbackAdd restores the archive to the exact byte range it had before
// writeEntry began, truncating away any partially written entry and
// re-emitting the preserved central directory and EOCD (§4.6, §9).
func (a *Archive) rollbackAdd(ctx context.Context, ws WritableSource, snapshot addSnapshot) error {
	if err := ws.Truncate(ctx, snapshot.startOfCD); err != nil {
		return err
	}
	if err := ws.Seek(ctx, snapshot.startOfCD); err != nil {
		return err
	}
	if err := ws.Write(ctx, snapshot.rawCD); err != nil {
		return err
	}
	cdOffset := uint64(snapshot.startOfCD)
	if err := writeCentralDirectoryTail(ctx, ws, snapshot.totalEntries, cdOffset, snapshot.cdSize, snapshot.comment, a.zip64Threshold); err != nil {
		return err
	}
	if err := ws.Truncate(ctx, ws.Position()); err != nil {
		return err
	}
	return ws.Flush(ctx)
}

// countingWriter adapts a WritableSource to io.Writer for use as a
// Compressor's destination, tracking the number of compressed bytes
// actually written so the real compressed size is known for the LFH/CDS
// rewrite.
type countingWriter struct {
	ctx context.Context
	ws  WritableSource
	n   int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	if err := w.ws.Write(w.ctx, p); err != nil {
		return 0, err
	}
	w.n += int64(len(p))
	return len(p), nil
}
