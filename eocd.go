package zipvault

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/brinkwood/zipvault/internal/format"
)

const maxEOCDCommentSize = 0xFFFF

// sourceReader adapts a Source to io.Reader for use with the format
// package's decode helpers, which are written against plain io.Reader so
// they have no dependency on this module's cursor abstraction.
type sourceReader struct {
	ctx context.Context
	src Source
}

func (r sourceReader) Read(p []byte) (int, error) {
	chunk, err := r.src.Read(r.ctx, len(p))
	if err != nil {
		return 0, err
	}
	if len(chunk) == 0 {
		return 0, io.EOF
	}
	n := copy(p, chunk)
	return n, nil
}

func readSignature(ctx context.Context, src Source) (uint32, error) {
	r := sourceReader{ctx: ctx, src: src}
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// loadExisting parses the archive's EOCD (and ZIP64 counterparts) eagerly,
// the way AccessModeUpdate's "existing file required, re-parsed" demands;
// AccessModeRead opens don't strictly need this, but eager validation up
// front matches the rest of this corpus's fail-fast opens.
func (a *Archive) loadExisting(ctx context.Context) error {
	_, err := a.entriesLocked(ctx)
	return err
}

func (a *Archive) readCentralDirectory(ctx context.Context) ([]Entry, string, error) {
	records, comment, err := a.decodeCentralDirectory(ctx)
	if err != nil {
		return nil, "", err
	}

	entries := make([]Entry, 0, len(records))
	for _, cds := range records {
		if cds.GeneralPurposeBitFlag&encryptedBit != 0 {
			a.logger.Debug("skipping encrypted entry", zap.String("path", cds.Filename))
			continue
		}
		entry, err := entryFromCentralDirectory(cds)
		if err != nil {
			return nil, "", err
		}
		entries = append(entries, entry)
	}
	return entries, comment, nil
}

// decodeCentralDirectory parses every central directory record verbatim,
// including encrypted entries that Entries/readCentralDirectory omit from
// the decoded view. Remove needs the unfiltered list so it never silently
// drops an entry it wasn't asked to remove (§4.7, §4.8).
func (a *Archive) decodeCentralDirectory(ctx context.Context) ([]format.CentralDirectory, string, error) {
	length, err := a.source.Length(ctx)
	if err != nil {
		return nil, "", err
	}

	eocdOffset, eocd, err := a.locateEOCD(ctx, length)
	if err != nil {
		return nil, "", err
	}

	centralDirOffset := uint64(eocd.CentralDirOffset)
	centralDirSize := uint64(eocd.CentralDirSize)
	totalEntries := uint64(eocd.TotalNumberOfEntries)

	needsZip64 := eocd.CentralDirOffset == 0xFFFFFFFF ||
		eocd.CentralDirSize == 0xFFFFFFFF ||
		eocd.TotalNumberOfEntries == 0xFFFF

	if needsZip64 {
		zip64, err := a.readZip64EOCD(ctx, eocdOffset)
		if err != nil {
			return nil, "", err
		}
		if eocd.TotalNumberOfEntries != 0xFFFF && eocd.TotalNumberOfEntries != uint16(zip64.TotalNumberOfEntries) {
			return nil, "", fmt.Errorf("%w: classic eocd reports %d, zip64 eocd reports %d",
				ErrInvalidCentralDirectoryEntryCount, eocd.TotalNumberOfEntries, zip64.TotalNumberOfEntries)
		}
		centralDirOffset = zip64.CentralDirOffset
		centralDirSize = zip64.CentralDirSize
		totalEntries = zip64.TotalNumberOfEntries
	}

	if int64(centralDirOffset) > length || int64(centralDirOffset) < 0 {
		return nil, "", fmt.Errorf("%w: offset %d exceeds archive length %d", ErrInvalidCentralDirectoryOffset, centralDirOffset, length)
	}
	if int64(centralDirOffset+centralDirSize) > length {
		return nil, "", fmt.Errorf("%w: size %d at offset %d exceeds archive length %d", ErrInvalidCentralDirectorySize, centralDirSize, centralDirOffset, length)
	}

	if err := a.source.Seek(ctx, int64(centralDirOffset)); err != nil {
		return nil, "", err
	}
	reader := sourceReader{ctx: ctx, src: a.source}

	records := make([]format.CentralDirectory, 0, totalEntries)
	var decoded uint64
	for decoded < totalEntries {
		cds, ok, err := format.DecodeCentralDirEntry(reader)
		if err != nil {
			return nil, "", fmt.Errorf("decode central directory entry %d: %w", decoded, err)
		}
		if !ok {
			a.logger.Warn("central directory terminated early",
				zap.Uint64("decoded", decoded), zap.Uint64("declared", totalEntries))
			break
		}
		decoded++
		records = append(records, cds)
	}

	a.cdOffset = centralDirOffset
	a.cdSize = centralDirSize
	a.totalEntries = totalEntries

	return records, eocd.Comment, nil
}

// writeCentralDirectoryTail emits the EOCD (and, when entryCount, cdSize, or
// cdOffset demand it, the ZIP64 EOCD record + locator immediately before
// it) at the writer's current position, per §4.6 steps 6-7. It is used by
// append, remove, and add's rollback, so the promotion decision is made
// exactly once; a newly created archive gets its empty EOCD from
// writeMinimalEOCD instead.
func writeCentralDirectoryTail(ctx context.Context, ws WritableSource, entryCount, cdOffset, cdSize uint64, comment string, threshold uint64) error {
	needsZip64 := entryCount >= threshold || cdSize >= threshold || cdOffset >= threshold || entryCount >= 0xFFFF
	if !needsZip64 {
		return ws.Write(ctx, format.EncodeEndOfCentralDirRecord(entryCount, cdSize, cdOffset, comment))
	}

	zip64Offset := cdOffset + cdSize
	if err := ws.Write(ctx, format.EncodeZip64EndOfCentralDirRecord(entryCount, cdSize, cdOffset)); err != nil {
		return err
	}
	if err := ws.Write(ctx, format.EncodeZip64EndOfCentralDirLocator(zip64Offset)); err != nil {
		return err
	}
	// Once a ZIP64 EOCD record is present, the classic EOCD carries the
	// sentinel in every promotable field regardless of which one actually
	// overflowed (§3), so readers know to defer to the ZIP64 record.
	return ws.Write(ctx, format.EncodeEndOfCentralDirRecord(0xFFFF, 0xFFFFFFFF, 0xFFFFFFFF, comment))
}

func (a *Archive) locateEOCD(ctx context.Context, length int64) (int64, format.EndOfCentralDirectory, error) {
	if length < format.EndOfCentralDirLen {
		return 0, format.EndOfCentralDirectory{}, ErrMissingEndOfCentralDirectoryRecord
	}

	window := min(length, int64(format.EndOfCentralDirLen+maxEOCDCommentSize))
	if err := a.source.Seek(ctx, length-window); err != nil {
		return 0, format.EndOfCentralDirectory{}, err
	}
	buf, err := readFull(ctx, a.source, int(window))
	if err != nil {
		return 0, format.EndOfCentralDirectory{}, err
	}

	sigBytes := []byte{0x50, 0x4b, 0x05, 0x06}
	for i := len(buf) - 4; i >= 0; i-- {
		if !bytes.Equal(buf[i:i+4], sigBytes) {
			continue
		}
		eocd, err := format.DecodeEndOfCentralDir(bytes.NewReader(buf[i+4:]))
		if err != nil {
			continue
		}
		return length - window + int64(i), eocd, nil
	}
	return 0, format.EndOfCentralDirectory{}, ErrMissingEndOfCentralDirectoryRecord
}

func (a *Archive) readZip64EOCD(ctx context.Context, eocdOffset int64) (format.Zip64EndOfCentralDirectory, error) {
	locatorOffset := eocdOffset - format.Zip64LocatorLen
	if locatorOffset < 0 {
		return format.Zip64EndOfCentralDirectory{}, ErrMissingEndOfCentralDirectoryRecord
	}
	if err := a.source.Seek(ctx, locatorOffset); err != nil {
		return format.Zip64EndOfCentralDirectory{}, err
	}
	sig, err := readSignature(ctx, a.source)
	if err != nil {
		return format.Zip64EndOfCentralDirectory{}, err
	}
	if sig != format.Zip64EndOfCentralDirLocatorSignature {
		return format.Zip64EndOfCentralDirectory{}, ErrMissingEndOfCentralDirectoryRecord
	}
	locator, err := format.DecodeZip64EndOfCentralDirLocator(sourceReader{ctx: ctx, src: a.source})
	if err != nil {
		return format.Zip64EndOfCentralDirectory{}, err
	}

	if err := a.source.Seek(ctx, int64(locator.Zip64EndOfCentralDirOffset)); err != nil {
		return format.Zip64EndOfCentralDirectory{}, err
	}
	sig, err = readSignature(ctx, a.source)
	if err != nil {
		return format.Zip64EndOfCentralDirectory{}, err
	}
	if sig != format.Zip64EndOfCentralDirSignature {
		return format.Zip64EndOfCentralDirectory{}, ErrMissingEndOfCentralDirectoryRecord
	}
	return format.DecodeZip64EndOfCentralDir(sourceReader{ctx: ctx, src: a.source})
}

// readFull reads exactly n bytes from src starting at its current position,
// looping over Read's short-read contract.
func readFull(ctx context.Context, src Source, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk, err := src.Read(ctx, n-len(out))
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			break
		}
		out = append(out, chunk...)
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: short read, got %d of %d bytes", ErrCorruptedData, len(out), n)
	}
	return out, nil
}
