package zipvault

import (
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/brinkwood/zipvault/internal/format"
	"github.com/brinkwood/zipvault/internal/sys"
)

// EntryType classifies what an entry's data represents, derived rather than
// stored: a trailing "/" in the path means directory, the symlink bit in
// the external file attributes means symlink, otherwise it's a file (§3).
type EntryType int

const (
	EntryTypeFile EntryType = iota
	EntryTypeDirectory
	EntryTypeSymlink
)

func (t EntryType) String() string {
	switch t {
	case EntryTypeDirectory:
		return "directory"
	case EntryTypeSymlink:
		return "symlink"
	default:
		return "file"
	}
}

// Entry is the immutable, derived view of one central directory record: its
// raw decoded fields plus the effective sizes/offset that honor ZIP64
// promotion (§3).
type Entry struct {
	Path               string
	Type               EntryType
	CompressionMethod  CompressionMethod
	CRC32              uint32
	Permissions        fs.FileMode
	ModTime            time.Time
	Comment            string
	GeneralPurposeFlag uint16

	effectiveCompressedSize   uint64
	effectiveUncompressedSize uint64
	effectiveRelativeOffset   uint64
	isZIP64                   bool
	usesDataDescriptor        bool

	cds format.CentralDirectory
}

// UncompressedSize is the entry's decompressed size in bytes.
func (e Entry) UncompressedSize() uint64 { return e.effectiveUncompressedSize }

// CompressedSize is the entry's on-disk size in bytes.
func (e Entry) CompressedSize() uint64 { return e.effectiveCompressedSize }

// RelativeOffset is the byte offset, from the start of the archive, of this
// entry's local file header.
func (e Entry) RelativeOffset() uint64 { return e.effectiveRelativeOffset }

// IsZIP64 reports whether any of this entry's fields required ZIP64 promotion.
func (e Entry) IsZIP64() bool { return e.isZIP64 }

// IsEncrypted reports whether general purpose bit 0 (encryption) is set.
// The engine never materializes such entries (§4.8); Entries() omits them.
func (e Entry) IsEncrypted() bool { return e.GeneralPurposeFlag&encryptedBit != 0 }

const encryptedBit = 0x1
const utf8Bit = 0x800
const dataDescriptorBit = 0x8

// entryFromCentralDirectory builds an Entry from a decoded CDS, resolving
// ZIP64 promotion and deriving type/path.
func entryFromCentralDirectory(cds format.CentralDirectory) (Entry, error) {
	e := Entry{
		Path:               interpretPath(cds.Filename),
		CompressionMethod:  CompressionMethod(cds.CompressionMethod),
		CRC32:              cds.CRC32,
		Comment:            cds.Comment,
		GeneralPurposeFlag: cds.GeneralPurposeBitFlag,

		effectiveCompressedSize:   uint64(cds.CompressedSize),
		effectiveUncompressedSize: uint64(cds.UncompressedSize),
		effectiveRelativeOffset:   uint64(cds.LocalHeaderOffset),
		usesDataDescriptor:        cds.GeneralPurposeBitFlag&dataDescriptorBit != 0,
		cds:                       cds,
	}

	wantUncompressed := cds.UncompressedSize == 0xFFFFFFFF
	wantCompressed := cds.CompressedSize == 0xFFFFFFFF
	wantOffset := cds.LocalHeaderOffset == 0xFFFFFFFF
	wantDisk := cds.DiskNumberStart == 0xFFFF

	if wantUncompressed || wantCompressed || wantOffset || wantDisk {
		payload, ok := format.Zip64ExtraPayload(cds.ExtraField)
		if !ok {
			return Entry{}, fmt.Errorf("%w: %s missing zip64 extra field", ErrInvalidEntrySize, e.Path)
		}
		zip64, err := format.DecodeZip64Extra(payload, wantUncompressed, wantCompressed, wantOffset, wantDisk)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %s: %v", ErrInvalidEntrySize, e.Path, err)
		}
		e.isZIP64 = true
		if zip64.HasUncompressed {
			e.effectiveUncompressedSize = zip64.UncompressedSize
		}
		if zip64.HasCompressed {
			e.effectiveCompressedSize = zip64.CompressedSize
		}
		if zip64.HasOffset {
			e.effectiveRelativeOffset = zip64.LocalHeaderOffset
		}
	}

	e.Type = deriveEntryType(e.Path, cds.ExternalFileAttributes)
	e.Permissions = permissionsFromExternalAttributes(cds.ExternalFileAttributes, e.Type)
	e.ModTime = dosTimeToTime(cds.LastModFileDate, cds.LastModFileTime)

	return e, nil
}

// interpretPath normalizes a ZIP entry name to forward slashes and strips
// any leading slash, matching how entries are always recorded on write
// (bit 11, UTF-8) and interpreted on read regardless of origin platform.
func interpretPath(raw string) string {
	p := strings.ReplaceAll(raw, "\\", "/")
	return strings.TrimPrefix(p, "/")
}

func deriveEntryType(path string, externalAttrs uint32) EntryType {
	if strings.HasSuffix(path, "/") {
		return EntryTypeDirectory
	}
	mode := externalAttrs >> 16
	if mode&sys.S_IFLNK == sys.S_IFLNK {
		return EntryTypeSymlink
	}
	return EntryTypeFile
}

func permissionsFromExternalAttributes(externalAttrs uint32, t EntryType) fs.FileMode {
	mode := externalAttrs >> 16
	perm := fs.FileMode(mode & 0o7777)
	if perm == 0 {
		if t == EntryTypeDirectory {
			return 0o755
		}
		return 0o644
	}
	switch t {
	case EntryTypeDirectory:
		return perm | fs.ModeDir
	case EntryTypeSymlink:
		return perm | fs.ModeSymlink
	default:
		return perm
	}
}

// externalAttributesFor packs POSIX permissions and entry type into the
// externalFileAttributes field the way UNIX-authored archives always have:
// high 16 bits are the st_mode-style value; of the low bits, only the MS-DOS
// directory bit (0x10) is set, and only for directories.
func externalAttributesFor(t EntryType, perm fs.FileMode) uint32 {
	var kind uint32
	switch t {
	case EntryTypeDirectory:
		kind = sys.S_IFDIR
	case EntryTypeSymlink:
		kind = sys.S_IFLNK
	default:
		kind = sys.S_IFREG
	}
	mode := kind | uint32(perm.Perm())
	attrs := mode << 16
	if t == EntryTypeDirectory {
		attrs |= 0x10 // MS-DOS directory bit, for tools that only look there
	}
	return attrs
}

const versionMadeBy = uint16(sys.HostSystemUNIX)<<8 | 21 // (host=UNIX, spec version 2.1)
const versionNeeded = 20
const versionNeededZIP64 = 45

// dosTimeToTime converts an MS-DOS (date, time) pair to a time.Time in UTC,
// the representation every LFH/CDS record carries (§3).
func dosTimeToTime(date, t uint16) time.Time {
	if date == 0 && t == 0 {
		return time.Time{}
	}
	year := int(date>>9) + 1980
	month := int((date >> 5) & 0xF)
	day := int(date & 0x1F)
	hour := int(t >> 11)
	minute := int((t >> 5) & 0x3F)
	second := int(t&0x1F) * 2
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
}

// timeToDOSTime converts a time.Time to its MS-DOS (date, time) encoding.
// Times before 1980 or after 2107 are clamped to DOS's representable range.
func timeToDOSTime(t time.Time) (date, dosTime uint16) {
	if t.IsZero() {
		return 0, 0
	}
	t = t.UTC()
	year := t.Year()
	if year < 1980 {
		year = 1980
	}
	if year > 2107 {
		year = 2107
	}
	date = uint16((year-1980)<<9 | int(t.Month())<<5 | t.Day())
	dosTime = uint16(t.Hour()<<11 | t.Minute()<<5 | t.Second()/2)
	return date, dosTime
}
