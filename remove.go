package zipvault

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/brinkwood/zipvault/internal/format"
)

// removeConfig holds the tunables a RemoveOption can override (§10.1).
type removeConfig struct {
	bufferSize int
	progress   *Progress
}

func defaultRemoveConfig() removeConfig {
	return removeConfig{bufferSize: defaultBufferSize}
}

// RemoveOption mutates the configuration of one Remove call.
type RemoveOption func(*removeConfig)

// WithRemoveBufferSize overrides the default 16 KiB read/write chunk size
// used while copying surviving entries into the rebuilt archive.
func WithRemoveBufferSize(n int) RemoveOption {
	return func(c *removeConfig) { c.bufferSize = n }
}

// WithRemoveProgress attaches a cancellation/progress token to the call.
func WithRemoveProgress(p *Progress) RemoveOption {
	return func(c *removeConfig) { c.progress = p }
}

// Remove deletes one entry by rebuilding the archive into a fresh backing
// store, copying every surviving entry's local header, data, and optional
// data descriptor byte-for-byte (§4.7). The rebuild happens entirely in the
// new store; the original is only replaced once the rebuild fully succeeds,
// so a failure or cancellation midway leaves the original untouched.
func (a *Archive) Remove(ctx context.Context, e Entry, opts ...RemoveOption) error {
	cfg := defaultRemoveConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validateBufferSize(cfg.bufferSize); err != nil {
		return err
	}
	if _, err := a.requireWritable(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	outcome := outcomeSuccess
	defer func() { a.metrics.observe(operationRemove, outcome, 0) }()

	if err := a.removeLocked(ctx, e, cfg); err != nil {
		if errors.Is(err, ErrCancelledOperation) {
			outcome = outcomeCancelled
		} else {
			outcome = outcomeError
		}
		return err
	}
	return nil
}

func (a *Archive) removeLocked(ctx context.Context, target Entry, cfg removeConfig) error {
	records, comment, err := a.decodeCentralDirectory(ctx)
	if err != nil {
		return err
	}

	entries := make([]Entry, len(records))
	for i, cds := range records {
		entry, err := entryFromCentralDirectory(cds)
		if err != nil {
			return err
		}
		entries[i] = entry
	}

	targetIdx := -1
	for i, entry := range entries {
		if entry.Path == target.Path && entry.RelativeOffset() == target.RelativeOffset() {
			targetIdx = i
			break
		}
	}
	if targetIdx < 0 {
		return fmt.Errorf("%w: %q", ErrFileNotFound, target.Path)
	}

	var total int64
	for i, entry := range entries {
		if i != targetIdx {
			total += int64(entry.CompressedSize())
		}
	}
	cfg.progress.setTotal(total)

	dest, cleanup, err := a.newRebuildDestination()
	if err != nil {
		return err
	}

	newCDOffset, newCDSize, survivingCount, err := rebuildWithout(ctx, a.source, dest, records, entries, targetIdx, comment, a.zip64Threshold, cfg)
	if err != nil {
		cleanup(false)
		return err
	}

	if err := a.commitRebuild(dest, cleanup); err != nil {
		return err
	}

	a.cdOffset = newCDOffset
	a.cdSize = newCDSize
	a.totalEntries = survivingCount
	a.invalidateCache()
	return nil
}

// newRebuildDestination opens a fresh, empty backing store of the same kind
// as the archive's current source: a sibling temp file for file-backed
// archives, a new in-memory buffer for memory-backed ones. cleanup(commit)
// discards the destination when commit is false; file destinations are
// left in place on true, for commitRebuild's rename.
func (a *Archive) newRebuildDestination() (WritableSource, func(commit bool), error) {
	switch src := a.source.(type) {
	case *fileSource:
		tempPath := src.path + ".zipvault-tmp"
		dest, err := createFileSource(tempPath)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnwritableArchive, err)
		}
		cleanup := func(commit bool) {
			if !commit {
				dest.Close()
				os.Remove(tempPath)
			}
		}
		return dest, cleanup, nil

	case *memorySource:
		dest := newMemorySource(nil)
		return dest, func(bool) {}, nil

	default:
		return nil, nil, fmt.Errorf("%w: archive source does not support rebuilding", ErrUnwritableArchive)
	}
}

// commitRebuild swaps the archive's source for the freshly rebuilt one.
// For a file-backed archive this renames the temp file over the original,
// atomic on the same filesystem; the old file descriptor stays valid for
// its own inode until explicitly closed, so the rename can happen first.
func (a *Archive) commitRebuild(dest WritableSource, cleanup func(commit bool)) error {
	switch newSrc := dest.(type) {
	case *fileSource:
		old, ok := a.source.(*fileSource)
		if !ok {
			cleanup(false)
			return fmt.Errorf("%w: source changed kind mid-operation", ErrUnwritableArchive)
		}
		if err := os.Rename(newSrc.path, old.path); err != nil {
			cleanup(false)
			return fmt.Errorf("%w: rename rebuilt archive into place: %v", ErrUnwritableArchive, err)
		}
		newSrc.path = old.path
		old.Close()
		a.source = newSrc

	case *memorySource:
		a.source = newSrc

	default:
		cleanup(false)
		return fmt.Errorf("%w: unexpected rebuilt source type", ErrUnwritableArchive)
	}
	return nil
}

// rebuildWithout copies every record except skipIdx from src to dest in
// central directory order, relocating each survivor's local header to its
// new position, then writes the rebuilt central directory and EOCD tail.
// It returns the new central directory's offset, size, and entry count.
func rebuildWithout(ctx context.Context, src Source, dest WritableSource, records []format.CentralDirectory, entries []Entry, skipIdx int, comment string, threshold uint64, cfg removeConfig) (cdOffset, cdSize uint64, survivingCount uint64, err error) {
	var cdBuf []byte
	var cursor int64

	for i, cds := range records {
		if i == skipIdx {
			continue
		}
		entry := entries[i]

		if err := checkCancel(cfg.progress); err != nil {
			return 0, 0, 0, err
		}

		blockLen, err := copyEntryBlock(ctx, src, dest, entry, cursor, cfg)
		if err != nil {
			return 0, 0, 0, err
		}

		newCDS := relocateCentralDirectoryEntry(cds, entry, uint64(cursor), threshold)
		cdBuf = append(cdBuf, newCDS.Encode()...)

		cursor += blockLen
		survivingCount++
	}

	cdOffset = uint64(cursor)
	cdSize = uint64(len(cdBuf))

	if err := dest.Seek(ctx, cursor); err != nil {
		return 0, 0, 0, err
	}
	if err := dest.Write(ctx, cdBuf); err != nil {
		return 0, 0, 0, err
	}
	if err := writeCentralDirectoryTail(ctx, dest, survivingCount, cdOffset, cdSize, comment, threshold); err != nil {
		return 0, 0, 0, err
	}
	finalLength := dest.Position()
	if err := dest.Truncate(ctx, finalLength); err != nil {
		return 0, 0, 0, err
	}
	if err := dest.Flush(ctx); err != nil {
		return 0, 0, 0, err
	}

	return cdOffset, cdSize, survivingCount, nil
}

// copyEntryBlock copies one entry's local header, compressed data, and (if
// present) trailing data descriptor from src to dest at writeOffset,
// verbatim, and returns the number of bytes copied.
func copyEntryBlock(ctx context.Context, src Source, dest WritableSource, entry Entry, writeOffset int64, cfg removeConfig) (int64, error) {
	headerLen, err := localFileHeaderLength(ctx, src, int64(entry.RelativeOffset()))
	if err != nil {
		return 0, err
	}
	dataLen := int64(entry.CompressedSize())

	if err := dest.Seek(ctx, writeOffset); err != nil {
		return 0, err
	}
	if err := copyRange(ctx, src, dest, int64(entry.RelativeOffset()), headerLen+dataLen, cfg.bufferSize, cfg.progress); err != nil {
		return 0, err
	}
	total := headerLen + dataLen

	if entry.usesDataDescriptor {
		dataEnd := int64(entry.RelativeOffset()) + headerLen + dataLen
		descLen, err := dataDescriptorLength(ctx, src, dataEnd, entry.IsZIP64())
		if err != nil {
			return 0, err
		}
		if err := copyRange(ctx, src, dest, dataEnd, descLen, cfg.bufferSize, cfg.progress); err != nil {
			return 0, err
		}
		total += descLen
	}
	return total, nil
}

// relocateCentralDirectoryEntry rebuilds one central directory record with
// a new local header offset, re-running ZIP64 promotion for that offset.
// The size fields, version needed to extract and ZIP64 extra are recomputed
// and the disk number start is reset to 0; every other field (including any
// non-ZIP64 extra tags) is left untouched.
func relocateCentralDirectoryEntry(cds format.CentralDirectory, entry Entry, newOffset, threshold uint64) format.CentralDirectory {
	u32, c32, off32, extra, isZip64 := promoteCentralDirectoryFields(entry.UncompressedSize(), entry.CompressedSize(), newOffset, threshold)

	newExtra := make(map[uint16][]byte, len(cds.ExtraField))
	for tag, raw := range cds.ExtraField {
		if tag != format.Zip64ExtraFieldTag {
			newExtra[tag] = raw
		}
	}
	if isZip64 {
		newExtra[format.Zip64ExtraFieldTag] = extra[format.Zip64ExtraFieldTag]
	}
	if len(newExtra) == 0 {
		newExtra = nil
	}

	out := cds
	out.VersionNeededToExtract = versionNeededFor(isZip64)
	out.CompressedSize = c32
	out.UncompressedSize = u32
	out.LocalHeaderOffset = off32
	out.DiskNumberStart = 0
	out.ExtraField = newExtra
	return out
}

// localFileHeaderLength returns the byte length of the local file header
// (fixed prefix + name + extra field) at offset, without caring about the
// header's own declared sizes; those are read from the authoritative
// central directory record instead.
func localFileHeaderLength(ctx context.Context, src Source, offset int64) (int64, error) {
	if err := src.Seek(ctx, offset); err != nil {
		return 0, err
	}
	reader := sourceReader{ctx: ctx, src: src}
	readTail := func(nameLen, extraLen int) ([]byte, []byte, error) {
		buf, err := readFull(ctx, src, nameLen+extraLen)
		if err != nil {
			return nil, nil, err
		}
		return buf[:nameLen], buf[nameLen:], nil
	}
	lfh, ok, err := format.DecodeLocalFileHeader(reader, readTail)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: offset %d", ErrLocalHeaderNotFound, offset)
	}
	return int64(format.LocalFileHeaderLen) + int64(lfh.FilenameLength) + int64(lfh.ExtraFieldLength), nil
}

// dataDescriptorLength determines how many bytes the optional data
// descriptor following an entry's data actually occupies, by peeking its
// first four bytes for the optional signature (the central directory's sizes
// are authoritative either way, so this only needs the byte length, not the
// descriptor's values).
func dataDescriptorLength(ctx context.Context, src Source, dataEnd int64, isZip64 bool) (int64, error) {
	if err := src.Seek(ctx, dataEnd); err != nil {
		return 0, err
	}
	peek, err := readFull(ctx, src, 4)
	if err != nil {
		return 0, err
	}
	sizeFieldLen := int64(4)
	if isZip64 {
		sizeFieldLen = 8
	}
	if binary.LittleEndian.Uint32(peek) == format.DataDescriptorSignature {
		return 8 + 2*sizeFieldLen, nil
	}
	return 4 + 2*sizeFieldLen, nil
}

// copyRange streams length bytes from src starting at srcOffset to dest at
// its current write position, bufferSize at a time, checking cancellation
// between chunks.
func copyRange(ctx context.Context, src Source, dest WritableSource, srcOffset, length int64, bufferSize int, progress *Progress) error {
	if err := src.Seek(ctx, srcOffset); err != nil {
		return err
	}
	var copied int64
	for copied < length {
		if err := checkCancel(progress); err != nil {
			return err
		}
		want := bufferSize
		if remaining := length - copied; int64(want) > remaining {
			want = int(remaining)
		}
		chunk, err := src.Read(ctx, want)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return fmt.Errorf("%w: short read copying entry data", ErrCorruptedData)
		}
		if err := dest.Write(ctx, chunk); err != nil {
			return err
		}
		copied += int64(len(chunk))
		progress.addDone(int64(len(chunk)))
	}
	return nil
}
