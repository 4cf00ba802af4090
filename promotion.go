package zipvault

import "github.com/brinkwood/zipvault/internal/format"

// promoteCentralDirectoryFields decides, against threshold, which of an
// entry's uncompressed size, compressed size, and local header offset need
// ZIP64 promotion, and builds the resulting 32-bit field values plus the
// ZIP64 extra field payload carrying the real 64-bit values (§3's
// promotion rule, §4.6).
func promoteCentralDirectoryFields(uncompressedSize, compressedSize, relativeOffset, threshold uint64) (u32, c32, off32 uint32, extra map[uint16][]byte, isZip64 bool) {
	var z format.Zip64Extra

	u32 = uint32(uncompressedSize)
	if uncompressedSize >= threshold {
		u32 = 0xFFFFFFFF
		z.UncompressedSize, z.HasUncompressed = uncompressedSize, true
		isZip64 = true
	}
	c32 = uint32(compressedSize)
	if compressedSize >= threshold {
		c32 = 0xFFFFFFFF
		z.CompressedSize, z.HasCompressed = compressedSize, true
		isZip64 = true
	}
	off32 = uint32(relativeOffset)
	if relativeOffset >= threshold {
		off32 = 0xFFFFFFFF
		z.LocalHeaderOffset, z.HasOffset = relativeOffset, true
		isZip64 = true
	}

	if isZip64 {
		extra = map[uint16][]byte{format.Zip64ExtraFieldTag: format.EncodeZip64Extra(z)}
	}
	return
}

func versionNeededFor(isZip64 bool) uint16 {
	if isZip64 {
		return versionNeededZIP64
	}
	return versionNeeded
}
