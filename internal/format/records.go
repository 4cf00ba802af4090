// Package format encodes and decodes the fixed-layout ZIP binary records:
// the local file header, the central directory structure, the end of
// central directory record, their ZIP64 counterparts, and the optional
// data descriptor. Every multi-byte field is little-endian; every layout
// is packed with no padding, matching PKWARE APPNOTE 6.3.x.
package format

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"
)

// Each record type is identified by a four-byte signature beginning with
// the marker 0x4b50 ("PK").
const (
	LocalFileHeaderSignature             uint32 = 0x04034b50
	DataDescriptorSignature              uint32 = 0x08074b50
	CentralDirectorySignature            uint32 = 0x02014b50
	EndOfCentralDirSignature             uint32 = 0x06054b50
	Zip64EndOfCentralDirSignature        uint32 = 0x06064b50
	Zip64EndOfCentralDirLocatorSignature uint32 = 0x07064b50
)

// Zip64ExtraFieldTag identifies the ZIP64 extended-information extra field
// (header id 0x0001) carrying 64-bit replacements for sentinel-valued
// 32-bit fields.
const Zip64ExtraFieldTag uint16 = 0x0001

// Fixed sizes of the records below, excluding their variable tails.
const (
	LocalFileHeaderLen  = 30
	CentralDirectoryLen = 46
	EndOfCentralDirLen  = 22
	Zip64EOCDLen        = 56
	Zip64LocatorLen     = 20
)

// LocalFileHeader is the 30-byte record that precedes every entry's data.
type LocalFileHeader struct {
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	Filename               string
	ExtraField             map[uint16][]byte
}

// Encode serializes the header, its file name, and its extra fields.
func (h LocalFileHeader) Encode() []byte {
	extra := encodeExtraField(h.ExtraField)
	size := LocalFileHeaderLen + len(h.Filename) + len(extra)
	buf := make([]byte, size)

	binary.LittleEndian.PutUint32(buf[0:4], LocalFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[6:8], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[8:10], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[10:12], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], uint16(len(h.Filename)))
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(extra)))

	off := LocalFileHeaderLen
	off += copy(buf[off:], h.Filename)
	copy(buf[off:], extra)

	return buf
}

// DecodeLocalFileHeader reads the fixed 30-byte prefix from src, then calls
// readTail(fileNameLength, extraFieldLength) to obtain the variable tail.
// It returns false if the signature does not match or the read is short.
func DecodeLocalFileHeader(src io.Reader, readTail func(nameLen, extraLen int) ([]byte, []byte, error)) (LocalFileHeader, bool, error) {
	var buf [LocalFileHeaderLen]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return LocalFileHeader{}, false, nil
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != LocalFileHeaderSignature {
		return LocalFileHeader{}, false, nil
	}

	h := LocalFileHeader{
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[4:6]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[6:8]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[8:10]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[12:14]),
		CRC32:                  binary.LittleEndian.Uint32(buf[14:18]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[18:22]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[22:26]),
		FilenameLength:         binary.LittleEndian.Uint16(buf[26:28]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[28:30]),
	}

	name, extra, err := readTail(int(h.FilenameLength), int(h.ExtraFieldLength))
	if err != nil {
		return LocalFileHeader{}, false, fmt.Errorf("read local header tail: %w", err)
	}
	h.Filename = string(name)
	h.ExtraField = parseExtraField(extra)
	return h, true, nil
}

// DataDescriptor is the optional post-data trailer written when general
// purpose bit 3 is set. Size is 12 bytes without the optional signature,
// 16 with it, or 24 with both the signature and ZIP64 (8-byte) sizes.
type DataDescriptor struct {
	HasSignature     bool
	Zip64            bool
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
}

// DecodeDataDescriptor reads a data descriptor, trying the signature-bearing
// form first. zip64 selects 8-byte vs 4-byte size fields.
func DecodeDataDescriptor(src io.Reader, zip64 bool) (DataDescriptor, error) {
	sizeFieldLen := 4
	if zip64 {
		sizeFieldLen = 8
	}

	head := make([]byte, 4)
	if _, err := io.ReadFull(src, head); err != nil {
		return DataDescriptor{}, fmt.Errorf("read data descriptor: %w", err)
	}

	d := DataDescriptor{Zip64: zip64}
	var crcBuf [4]byte
	if binary.LittleEndian.Uint32(head) == DataDescriptorSignature {
		d.HasSignature = true
		if _, err := io.ReadFull(src, crcBuf[:]); err != nil {
			return DataDescriptor{}, fmt.Errorf("read data descriptor crc: %w", err)
		}
		d.CRC32 = binary.LittleEndian.Uint32(crcBuf[:])
	} else {
		d.CRC32 = binary.LittleEndian.Uint32(head)
	}

	sizes := make([]byte, sizeFieldLen*2)
	if _, err := io.ReadFull(src, sizes); err != nil {
		return DataDescriptor{}, fmt.Errorf("read data descriptor sizes: %w", err)
	}
	if zip64 {
		d.CompressedSize = binary.LittleEndian.Uint64(sizes[0:8])
		d.UncompressedSize = binary.LittleEndian.Uint64(sizes[8:16])
	} else {
		d.CompressedSize = uint64(binary.LittleEndian.Uint32(sizes[0:4]))
		d.UncompressedSize = uint64(binary.LittleEndian.Uint32(sizes[4:8]))
	}
	return d, nil
}

// Encode serializes the descriptor, always with the optional signature so
// that readers which expect it (and readers which don't) both succeed.
func (d DataDescriptor) Encode() []byte {
	sizeFieldLen := 4
	if d.Zip64 {
		sizeFieldLen = 8
	}
	buf := make([]byte, 8+2*sizeFieldLen)
	binary.LittleEndian.PutUint32(buf[0:4], DataDescriptorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], d.CRC32)
	if d.Zip64 {
		binary.LittleEndian.PutUint64(buf[8:16], d.CompressedSize)
		binary.LittleEndian.PutUint64(buf[16:24], d.UncompressedSize)
	} else {
		binary.LittleEndian.PutUint32(buf[8:12], uint32(d.CompressedSize))
		binary.LittleEndian.PutUint32(buf[12:16], uint32(d.UncompressedSize))
	}
	return buf
}

// CentralDirectory is the 46-byte per-entry record in the central directory.
type CentralDirectory struct {
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	FileCommentLength      uint16
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	LocalHeaderOffset      uint32
	Filename               string
	ExtraField             map[uint16][]byte
	Comment                string
}

// DecodeCentralDirEntry reads one CDS, including its signature, from src.
// It returns false (with a nil error) on signature mismatch, the tolerant
// termination §4.3 calls for rather than a hard error.
func DecodeCentralDirEntry(src io.Reader) (CentralDirectory, bool, error) {
	var sig [4]byte
	if _, err := io.ReadFull(src, sig[:]); err != nil {
		return CentralDirectory{}, false, nil
	}
	if binary.LittleEndian.Uint32(sig[:]) != CentralDirectorySignature {
		return CentralDirectory{}, false, nil
	}

	var buf [42]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return CentralDirectory{}, false, fmt.Errorf("read central directory entry: %w", err)
	}

	entry := CentralDirectory{
		VersionMadeBy:          binary.LittleEndian.Uint16(buf[0:2]),
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[2:4]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[4:6]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[6:8]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[8:10]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[10:12]),
		CRC32:                  binary.LittleEndian.Uint32(buf[12:16]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[16:20]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[20:24]),
		FilenameLength:         binary.LittleEndian.Uint16(buf[24:26]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[26:28]),
		FileCommentLength:      binary.LittleEndian.Uint16(buf[28:30]),
		DiskNumberStart:        binary.LittleEndian.Uint16(buf[30:32]),
		InternalFileAttributes: binary.LittleEndian.Uint16(buf[32:34]),
		ExternalFileAttributes: binary.LittleEndian.Uint32(buf[34:38]),
		LocalHeaderOffset:      binary.LittleEndian.Uint32(buf[38:42]),
	}

	tail := make([]byte, int(entry.FilenameLength)+int(entry.ExtraFieldLength)+int(entry.FileCommentLength))
	if _, err := io.ReadFull(src, tail); err != nil {
		return CentralDirectory{}, false, fmt.Errorf("read central directory tail: %w", err)
	}

	name := tail[:entry.FilenameLength]
	extra := tail[entry.FilenameLength : int(entry.FilenameLength)+int(entry.ExtraFieldLength)]
	comment := tail[int(entry.FilenameLength)+int(entry.ExtraFieldLength):]

	entry.Filename = string(name)
	entry.ExtraField = parseExtraField(extra)
	entry.Comment = string(comment)

	return entry, true, nil
}

// Encode serializes the CDS, its file name, its extra fields (in
// deterministic tag order), and its comment.
func (d CentralDirectory) Encode() []byte {
	extra := encodeExtraField(d.ExtraField)
	totalSize := CentralDirectoryLen + len(d.Filename) + len(extra) + len(d.Comment)
	buf := make([]byte, totalSize)

	binary.LittleEndian.PutUint32(buf[0:4], CentralDirectorySignature)
	binary.LittleEndian.PutUint16(buf[4:6], d.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], d.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[8:10], d.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[10:12], d.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[12:14], d.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[14:16], d.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[16:20], d.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], d.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(d.Filename)))
	binary.LittleEndian.PutUint16(buf[30:32], uint16(len(extra)))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(len(d.Comment)))
	binary.LittleEndian.PutUint16(buf[34:36], d.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], d.InternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[38:42], d.ExternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[42:46], d.LocalHeaderOffset)

	off := CentralDirectoryLen
	off += copy(buf[off:], d.Filename)
	off += copy(buf[off:], extra)
	copy(buf[off:], d.Comment)

	return buf
}

// EndOfCentralDirectory is the 22-byte trailer locating the central directory.
type EndOfCentralDirectory struct {
	ThisDiskNum                     uint16
	DiskNumWithTheStartOfCentralDir uint16
	TotalNumberOfEntriesOnThisDisk  uint16
	TotalNumberOfEntries            uint16
	CentralDirSize                  uint32
	CentralDirOffset                uint32
	CommentLength                   uint16
	Comment                         string
}

// EncodeEndOfCentralDirRecord builds an EOCD, clamping the entry counts to
// their 16-bit sentinel 0xFFFF and the central directory size and offset to
// their 32-bit sentinel 0xFFFFFFFF when they overflow (the promotion rule of
// §3: the real values then live in the ZIP64 EOCD).
func EncodeEndOfCentralDirRecord(entriesNum uint64, centralDirSize uint64, centralDirOffset uint64, comment string) []byte {
	commentLen := min(len(comment), math.MaxUint16)
	buf := make([]byte, EndOfCentralDirLen+commentLen)

	entries16 := uint16(min(math.MaxUint16, entriesNum))

	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], 0)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint16(buf[8:10], entries16)
	binary.LittleEndian.PutUint16(buf[10:12], entries16)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(min(math.MaxUint32, centralDirSize)))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(min(math.MaxUint32, centralDirOffset)))
	binary.LittleEndian.PutUint16(buf[20:22], uint16(commentLen))

	copy(buf[22:], comment[:commentLen])

	return buf
}

// DecodeEndOfCentralDir reads the 18 bytes that follow the signature in the
// 22-byte fixed part, then the trailing comment. The caller has already
// consumed and verified the 4-byte signature.
func DecodeEndOfCentralDir(src io.Reader) (EndOfCentralDirectory, error) {
	var buf [18]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return EndOfCentralDirectory{}, fmt.Errorf("read end of central directory: %w", err)
	}
	end := EndOfCentralDirectory{
		ThisDiskNum:                     binary.LittleEndian.Uint16(buf[0:2]),
		DiskNumWithTheStartOfCentralDir: binary.LittleEndian.Uint16(buf[2:4]),
		TotalNumberOfEntriesOnThisDisk:  binary.LittleEndian.Uint16(buf[4:6]),
		TotalNumberOfEntries:            binary.LittleEndian.Uint16(buf[6:8]),
		CentralDirSize:                  binary.LittleEndian.Uint32(buf[8:12]),
		CentralDirOffset:                binary.LittleEndian.Uint32(buf[12:16]),
		CommentLength:                   binary.LittleEndian.Uint16(buf[16:18]),
	}
	if end.CommentLength > 0 {
		commentBuf := make([]byte, end.CommentLength)
		if _, err := io.ReadFull(src, commentBuf); err != nil {
			return EndOfCentralDirectory{}, fmt.Errorf("read end of central directory comment: %w", err)
		}
		end.Comment = string(commentBuf)
	}
	return end, nil
}

// Zip64EndOfCentralDirectory is the 56-byte ZIP64 EOCD record.
type Zip64EndOfCentralDirectory struct {
	Size                            uint64
	VersionMadeBy                   uint16
	VersionNeededToExtract          uint16
	ThisDiskNum                     uint32
	DiskNumWithTheStartOfCentralDir uint32
	TotalNumberOfEntriesOnThisDisk  uint64
	TotalNumberOfEntries            uint64
	CentralDirSize                  uint64
	CentralDirOffset                uint64
}

// DecodeZip64EndOfCentralDir reads the 52-byte body following the signature,
// which the caller has already consumed and verified.
func DecodeZip64EndOfCentralDir(src io.Reader) (Zip64EndOfCentralDirectory, error) {
	var buf [52]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return Zip64EndOfCentralDirectory{}, fmt.Errorf("read zip64 end of central directory: %w", err)
	}
	return Zip64EndOfCentralDirectory{
		Size:                            binary.LittleEndian.Uint64(buf[0:8]),
		VersionMadeBy:                   binary.LittleEndian.Uint16(buf[8:10]),
		VersionNeededToExtract:          binary.LittleEndian.Uint16(buf[10:12]),
		ThisDiskNum:                     binary.LittleEndian.Uint32(buf[12:16]),
		DiskNumWithTheStartOfCentralDir: binary.LittleEndian.Uint32(buf[16:20]),
		TotalNumberOfEntriesOnThisDisk:  binary.LittleEndian.Uint64(buf[20:28]),
		TotalNumberOfEntries:            binary.LittleEndian.Uint64(buf[28:36]),
		CentralDirSize:                  binary.LittleEndian.Uint64(buf[36:44]),
		CentralDirOffset:                binary.LittleEndian.Uint64(buf[44:52]),
	}, nil
}

// EncodeZip64EndOfCentralDirRecord builds a ZIP64 EOCD record. versionMadeBy
// and versionNeededToExtract both follow §4.6's rule (45 once ZIP64 extras
// are in play).
func EncodeZip64EndOfCentralDirRecord(entriesNum uint64, centralDirSize uint64, centralDirOffset uint64) []byte {
	buf := make([]byte, Zip64EOCDLen)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirSignature)
	binary.LittleEndian.PutUint64(buf[4:12], Zip64EOCDLen-12) // size of record after this field
	binary.LittleEndian.PutUint16(buf[12:14], 45)
	binary.LittleEndian.PutUint16(buf[14:16], 45)
	binary.LittleEndian.PutUint32(buf[16:20], 0)
	binary.LittleEndian.PutUint32(buf[20:24], 0)
	binary.LittleEndian.PutUint64(buf[24:32], entriesNum)
	binary.LittleEndian.PutUint64(buf[32:40], entriesNum)
	binary.LittleEndian.PutUint64(buf[40:48], centralDirSize)
	binary.LittleEndian.PutUint64(buf[48:56], centralDirOffset)

	return buf
}

// Zip64EndOfCentralDirectoryLocator is the 20-byte record pointing at the
// ZIP64 EOCD record, itself immediately preceding the classic EOCD.
type Zip64EndOfCentralDirectoryLocator struct {
	EndOfCentralDirStartDiskNum uint32
	Zip64EndOfCentralDirOffset  uint64
	TotalNumberOfDisks          uint32
}

// DecodeZip64EndOfCentralDirLocator reads the 16-byte body following the
// signature, which the caller has already consumed and verified.
func DecodeZip64EndOfCentralDirLocator(src io.Reader) (Zip64EndOfCentralDirectoryLocator, error) {
	var buf [16]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return Zip64EndOfCentralDirectoryLocator{}, fmt.Errorf("read zip64 locator: %w", err)
	}
	return Zip64EndOfCentralDirectoryLocator{
		EndOfCentralDirStartDiskNum: binary.LittleEndian.Uint32(buf[0:4]),
		Zip64EndOfCentralDirOffset:  binary.LittleEndian.Uint64(buf[4:12]),
		TotalNumberOfDisks:          binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// EncodeZip64EndOfCentralDirLocator builds the 20-byte locator record.
func EncodeZip64EndOfCentralDirLocator(zip64EOCDOffset uint64) []byte {
	buf := make([]byte, Zip64LocatorLen)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirLocatorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	binary.LittleEndian.PutUint64(buf[8:16], zip64EOCDOffset)
	binary.LittleEndian.PutUint32(buf[16:20], 1)

	return buf
}

// Zip64Extra is the decoded, ordered subset of {uncompressedSize,
// compressedSize, relativeOffsetOfLocalHeader, diskNumberStart} carried in
// the ZIP64 extended-information extra field. A false Has* flag means the
// owning record's 32-bit field was not a sentinel, so the field is absent.
type Zip64Extra struct {
	UncompressedSize  uint64
	HasUncompressed   bool
	CompressedSize    uint64
	HasCompressed     bool
	LocalHeaderOffset uint64
	HasOffset         bool
	DiskNumberStart   uint32
	HasDiskNumber     bool
}

// DecodeZip64Extra parses the ZIP64 extra field payload (without its tag and
// size header). want* indicates, in the canonical order, which 32-bit
// sentinel fields require a 64-bit replacement to be read from data.
func DecodeZip64Extra(data []byte, wantUncompressed, wantCompressed, wantOffset, wantDiskNumber bool) (Zip64Extra, error) {
	var z Zip64Extra
	pos := 0

	next8 := func() (uint64, error) {
		if pos+8 > len(data) {
			return 0, fmt.Errorf("zip64 extra field too short: need 8 bytes at %d, have %d", pos, len(data))
		}
		v := binary.LittleEndian.Uint64(data[pos : pos+8])
		pos += 8
		return v, nil
	}

	if wantUncompressed {
		v, err := next8()
		if err != nil {
			return z, err
		}
		z.UncompressedSize, z.HasUncompressed = v, true
	}
	if wantCompressed {
		v, err := next8()
		if err != nil {
			return z, err
		}
		z.CompressedSize, z.HasCompressed = v, true
	}
	if wantOffset {
		v, err := next8()
		if err != nil {
			return z, err
		}
		z.LocalHeaderOffset, z.HasOffset = v, true
	}
	if wantDiskNumber {
		if pos+4 > len(data) {
			return z, fmt.Errorf("zip64 extra field too short: need 4 bytes at %d, have %d", pos, len(data))
		}
		z.DiskNumberStart = binary.LittleEndian.Uint32(data[pos : pos+4])
		z.HasDiskNumber = true
	}
	return z, nil
}

// EncodeZip64Extra serializes the present fields, in canonical order, as a
// complete extra field entry (tag + size header included).
func EncodeZip64Extra(z Zip64Extra) []byte {
	payload := make([]byte, 0, 28)
	if z.HasUncompressed {
		payload = binary.LittleEndian.AppendUint64(payload, z.UncompressedSize)
	}
	if z.HasCompressed {
		payload = binary.LittleEndian.AppendUint64(payload, z.CompressedSize)
	}
	if z.HasOffset {
		payload = binary.LittleEndian.AppendUint64(payload, z.LocalHeaderOffset)
	}
	if z.HasDiskNumber {
		payload = binary.LittleEndian.AppendUint32(payload, z.DiskNumberStart)
	}

	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], Zip64ExtraFieldTag)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(payload)))
	copy(buf[4:], payload)
	return buf
}

// encodeExtraField serializes a tag-keyed extra field map in deterministic
// tag order, so repeated encodes of the same entry are byte-identical.
func encodeExtraField(fields map[uint16][]byte) []byte {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]uint16, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var buf []byte
	for _, k := range keys {
		buf = append(buf, fields[k]...)
	}
	return buf
}

// parseExtraField splits a raw extra field blob into entries keyed by tag,
// where each stored value is the tag+size+payload triple (so re-encoding is
// a matter of concatenation, and unknown tags survive a decode/encode
// round trip unchanged).
func parseExtraField(extraField []byte) map[uint16][]byte {
	if len(extraField) == 0 {
		return nil
	}
	m := make(map[uint16][]byte)

	for offset := 0; offset < len(extraField); {
		if offset+4 > len(extraField) {
			break
		}
		tag := binary.LittleEndian.Uint16(extraField[offset : offset+2])
		size := int(binary.LittleEndian.Uint16(extraField[offset+2 : offset+4]))

		offset += 4
		if offset+size > len(extraField) {
			break
		}
		m[tag] = extraField[offset-4 : offset+size]
		offset += size
	}
	return m
}

// Zip64ExtraPayload returns the payload (sans tag+size header) of the ZIP64
// extended-information field from a parsed extra field map, if present.
func Zip64ExtraPayload(fields map[uint16][]byte) ([]byte, bool) {
	raw, ok := fields[Zip64ExtraFieldTag]
	if !ok || len(raw) < 4 {
		return nil, false
	}
	size := int(binary.LittleEndian.Uint16(raw[2:4]))
	if 4+size > len(raw) {
		return nil, false
	}
	return raw[4 : 4+size], true
}
