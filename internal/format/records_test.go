package format

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func TestLocalFileHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		h    LocalFileHeader
	}{
		{
			name: "plain file",
			h: LocalFileHeader{
				VersionNeededToExtract: 20,
				CompressionMethod:      8,
				CRC32:                  0x12345678,
				CompressedSize:         100,
				UncompressedSize:       200,
				Filename:               "test.txt",
			},
		},
		{
			name: "with zip64 extra",
			h: LocalFileHeader{
				VersionNeededToExtract: 45,
				CompressionMethod:      8,
				CompressedSize:         0xFFFFFFFF,
				UncompressedSize:       0xFFFFFFFF,
				Filename:               "big/file.bin",
				ExtraField: map[uint16][]byte{
					Zip64ExtraFieldTag: EncodeZip64Extra(Zip64Extra{
						UncompressedSize: 5_000_000_000,
						HasUncompressed:  true,
						CompressedSize:   4_000_000_000,
						HasCompressed:    true,
					}),
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.h.Encode()

			readTail := func(nameLen, extraLen int) ([]byte, []byte, error) {
				buf := make([]byte, nameLen+extraLen)
				if _, err := io.ReadFull(bytes.NewReader(encoded[LocalFileHeaderLen:]), buf); err != nil {
					return nil, nil, err
				}
				return buf[:nameLen], buf[nameLen:], nil
			}

			decoded, ok, err := DecodeLocalFileHeader(bytes.NewReader(encoded), readTail)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !ok {
				t.Fatal("decode returned ok=false")
			}
			if decoded.Filename != tt.h.Filename {
				t.Errorf("Filename: got %q, want %q", decoded.Filename, tt.h.Filename)
			}
			if decoded.CompressedSize != tt.h.CompressedSize {
				t.Errorf("CompressedSize: got %d, want %d", decoded.CompressedSize, tt.h.CompressedSize)
			}
			if decoded.UncompressedSize != tt.h.UncompressedSize {
				t.Errorf("UncompressedSize: got %d, want %d", decoded.UncompressedSize, tt.h.UncompressedSize)
			}
		})
	}
}

func TestDecodeLocalFileHeaderSignatureMismatch(t *testing.T) {
	buf := make([]byte, LocalFileHeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], CentralDirectorySignature)

	_, ok, err := DecodeLocalFileHeader(bytes.NewReader(buf), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false on signature mismatch")
	}
}

func TestDataDescriptorRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		d    DataDescriptor
	}{
		{name: "classic", d: DataDescriptor{CRC32: 0xAABBCCDD, CompressedSize: 100, UncompressedSize: 200}},
		{name: "zip64", d: DataDescriptor{Zip64: true, CRC32: 0x11223344, CompressedSize: 5_000_000_000, UncompressedSize: 6_000_000_000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.d.Encode()
			decoded, err := DecodeDataDescriptor(bytes.NewReader(encoded), tt.d.Zip64)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !decoded.HasSignature {
				t.Error("expected decoded signature flag to be set, since Encode always writes one")
			}
			if decoded.CRC32 != tt.d.CRC32 {
				t.Errorf("CRC32: got %x, want %x", decoded.CRC32, tt.d.CRC32)
			}
			if decoded.CompressedSize != tt.d.CompressedSize {
				t.Errorf("CompressedSize: got %d, want %d", decoded.CompressedSize, tt.d.CompressedSize)
			}
			if decoded.UncompressedSize != tt.d.UncompressedSize {
				t.Errorf("UncompressedSize: got %d, want %d", decoded.UncompressedSize, tt.d.UncompressedSize)
			}
		})
	}
}

func TestDataDescriptorWithoutSignature(t *testing.T) {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], 0xAABBCCDD)
	binary.LittleEndian.PutUint32(buf[4:8], 100)
	binary.LittleEndian.PutUint32(buf[8:12], 200)

	decoded, err := DecodeDataDescriptor(bytes.NewReader(buf), false)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.HasSignature {
		t.Error("expected HasSignature=false when the first four bytes aren't the marker")
	}
	if decoded.CRC32 != 0xAABBCCDD {
		t.Errorf("CRC32: got %x, want %x", decoded.CRC32, 0xAABBCCDD)
	}
}

func TestCentralDirectoryRoundTrip(t *testing.T) {
	entry := CentralDirectory{
		VersionMadeBy:          789,
		VersionNeededToExtract: 20,
		CRC32:                  0xAABBCCDD,
		CompressedSize:         1000,
		UncompressedSize:       2000,
		ExternalFileAttributes: 0o644 << 16,
		LocalHeaderOffset:      12345,
		Filename:               "dir/file.png",
		ExtraField:             map[uint16][]byte{0xAAAA: {0xAA, 0xAA, 0x03, 0x00, 1, 2, 3}},
		Comment:                "a comment",
	}

	encoded := entry.Encode()
	decoded, ok, err := DecodeCentralDirEntry(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ok {
		t.Fatal("decode returned ok=false")
	}
	if decoded.Filename != entry.Filename {
		t.Errorf("Filename: got %q, want %q", decoded.Filename, entry.Filename)
	}
	if decoded.Comment != entry.Comment {
		t.Errorf("Comment: got %q, want %q", decoded.Comment, entry.Comment)
	}
	if decoded.LocalHeaderOffset != entry.LocalHeaderOffset {
		t.Errorf("LocalHeaderOffset: got %d, want %d", decoded.LocalHeaderOffset, entry.LocalHeaderOffset)
	}
	if !bytes.Equal(decoded.ExtraField[0xAAAA], entry.ExtraField[0xAAAA]) {
		t.Errorf("ExtraField[0xAAAA]: got %v, want %v", decoded.ExtraField[0xAAAA], entry.ExtraField[0xAAAA])
	}
}

func TestDecodeCentralDirEntryTerminatesOnSignatureMismatch(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, EndOfCentralDirSignature)

	_, ok, err := DecodeCentralDirEntry(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false on signature mismatch, tolerant termination")
	}
}

func TestEndOfCentralDirRoundTrip(t *testing.T) {
	comment := "archive comment"
	encoded := EncodeEndOfCentralDirRecord(5, 1024, 2048, comment)

	if len(encoded) != EndOfCentralDirLen+len(comment) {
		t.Fatalf("length: got %d, want %d", len(encoded), EndOfCentralDirLen+len(comment))
	}

	sig := binary.LittleEndian.Uint32(encoded[0:4])
	if sig != EndOfCentralDirSignature {
		t.Errorf("signature: got %x, want %x", sig, EndOfCentralDirSignature)
	}

	decoded, err := DecodeEndOfCentralDir(bytes.NewReader(encoded[4:]))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.TotalNumberOfEntries != 5 {
		t.Errorf("TotalNumberOfEntries: got %d, want 5", decoded.TotalNumberOfEntries)
	}
	if decoded.CentralDirSize != 1024 {
		t.Errorf("CentralDirSize: got %d, want 1024", decoded.CentralDirSize)
	}
	if decoded.CentralDirOffset != 2048 {
		t.Errorf("CentralDirOffset: got %d, want 2048", decoded.CentralDirOffset)
	}
	if decoded.Comment != comment {
		t.Errorf("Comment: got %q, want %q", decoded.Comment, comment)
	}
}

func TestEndOfCentralDirClampsOverflowFieldsToSentinel(t *testing.T) {
	encoded := EncodeEndOfCentralDirRecord(0x10000, 0x100000000, 0x100000000, "")
	decoded, err := DecodeEndOfCentralDir(bytes.NewReader(encoded[4:]))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.TotalNumberOfEntries != 0xFFFF {
		t.Errorf("TotalNumberOfEntries: got %x, want 0xFFFF", decoded.TotalNumberOfEntries)
	}
	if decoded.CentralDirSize != 0xFFFFFFFF {
		t.Errorf("CentralDirSize: got %x, want 0xFFFFFFFF", decoded.CentralDirSize)
	}
	if decoded.CentralDirOffset != 0xFFFFFFFF {
		t.Errorf("CentralDirOffset: got %x, want 0xFFFFFFFF", decoded.CentralDirOffset)
	}
}

func TestZip64RecordsRoundTrip(t *testing.T) {
	t.Run("end of central directory", func(t *testing.T) {
		encoded := EncodeZip64EndOfCentralDirRecord(100, 5000, 10000)
		if len(encoded) != Zip64EOCDLen {
			t.Fatalf("length: got %d, want %d", len(encoded), Zip64EOCDLen)
		}
		sig := binary.LittleEndian.Uint32(encoded[0:4])
		if sig != Zip64EndOfCentralDirSignature {
			t.Fatalf("signature mismatch: got %x", sig)
		}
		decoded, err := DecodeZip64EndOfCentralDir(bytes.NewReader(encoded[4:]))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.TotalNumberOfEntries != 100 {
			t.Errorf("TotalNumberOfEntries: got %d, want 100", decoded.TotalNumberOfEntries)
		}
		if decoded.CentralDirSize != 5000 {
			t.Errorf("CentralDirSize: got %d, want 5000", decoded.CentralDirSize)
		}
		if decoded.CentralDirOffset != 10000 {
			t.Errorf("CentralDirOffset: got %d, want 10000", decoded.CentralDirOffset)
		}
		if decoded.VersionNeededToExtract != 45 {
			t.Errorf("VersionNeededToExtract: got %d, want 45", decoded.VersionNeededToExtract)
		}
	})

	t.Run("locator", func(t *testing.T) {
		encoded := EncodeZip64EndOfCentralDirLocator(9999)
		if len(encoded) != Zip64LocatorLen {
			t.Fatalf("length: got %d, want %d", len(encoded), Zip64LocatorLen)
		}
		decoded, err := DecodeZip64EndOfCentralDirLocator(bytes.NewReader(encoded[4:]))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.Zip64EndOfCentralDirOffset != 9999 {
			t.Errorf("Zip64EndOfCentralDirOffset: got %d, want 9999", decoded.Zip64EndOfCentralDirOffset)
		}
	})
}

func TestZip64ExtraRoundTrip(t *testing.T) {
	z := Zip64Extra{
		UncompressedSize: 5_000_000_000,
		HasUncompressed:  true,
		CompressedSize:   4_000_000_000,
		HasCompressed:    true,
		LocalHeaderOffset: 99_000_000_000,
		HasOffset:         true,
	}

	encoded := EncodeZip64Extra(z)
	payload, ok := Zip64ExtraPayload(map[uint16][]byte{Zip64ExtraFieldTag: encoded})
	if !ok {
		t.Fatal("Zip64ExtraPayload: not found")
	}

	decoded, err := DecodeZip64Extra(payload, true, true, true, false)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.UncompressedSize != z.UncompressedSize {
		t.Errorf("UncompressedSize: got %d, want %d", decoded.UncompressedSize, z.UncompressedSize)
	}
	if decoded.CompressedSize != z.CompressedSize {
		t.Errorf("CompressedSize: got %d, want %d", decoded.CompressedSize, z.CompressedSize)
	}
	if decoded.LocalHeaderOffset != z.LocalHeaderOffset {
		t.Errorf("LocalHeaderOffset: got %d, want %d", decoded.LocalHeaderOffset, z.LocalHeaderOffset)
	}
}

func TestParseExtraFieldPreservesUnknownTags(t *testing.T) {
	raw := make([]byte, 0)
	raw = binary.LittleEndian.AppendUint16(raw, 0x9999)
	raw = binary.LittleEndian.AppendUint16(raw, 2)
	raw = append(raw, 0x01, 0x02)

	parsed := parseExtraField(raw)
	if len(parsed) != 1 {
		t.Fatalf("expected 1 parsed tag, got %d", len(parsed))
	}
	if !bytes.Equal(parsed[0x9999], raw) {
		t.Errorf("round trip of unknown tag changed bytes: got %v, want %v", parsed[0x9999], raw)
	}
}
