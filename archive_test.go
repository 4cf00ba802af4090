package zipvault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveCreate_MinimalEOCD(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	entries, err := a.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	comment, err := a.Comment(ctx)
	require.NoError(t, err)
	assert.Empty(t, comment)
}

func TestAddExtract_RoundTrip(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	deflateContent := []byte("the quick brown fox jumps over the lazy dog, repeated. " +
		"the quick brown fox jumps over the lazy dog, repeated.")
	storedContent := []byte("stored verbatim")

	_, err = a.AddEntry(ctx, "docs/fox.txt", EntryTypeFile, int64(len(deflateContent)), bytesProvider(deflateContent))
	require.NoError(t, err)

	_, err = a.AddEntry(ctx, "raw.bin", EntryTypeFile, int64(len(storedContent)), bytesProvider(storedContent),
		WithCompressionMethod(CompressionStored))
	require.NoError(t, err)

	_, err = a.AddEntry(ctx, "docs/", EntryTypeDirectory, 0, bytesProvider(nil))
	require.NoError(t, err)

	entries, err := a.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byPath := map[string]Entry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}

	fox := byPath["docs/fox.txt"]
	assert.Equal(t, CompressionDeflate, fox.CompressionMethod)
	data, crc, err := collectExtract(ctx, a, fox)
	require.NoError(t, err)
	assert.Equal(t, deflateContent, data)
	assert.Equal(t, fox.CRC32, crc)

	raw := byPath["raw.bin"]
	assert.Equal(t, CompressionStored, raw.CompressionMethod)
	data, _, err = collectExtract(ctx, a, raw)
	require.NoError(t, err)
	assert.Equal(t, storedContent, data)

	dir := byPath["docs/"]
	assert.Equal(t, EntryTypeDirectory, dir.Type)
}

func TestAddEntry_RejectsDuplicatePath(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.AddEntry(ctx, "a.txt", EntryTypeFile, 3, bytesProvider([]byte("abc")))
	require.NoError(t, err)

	_, err = a.AddEntry(ctx, "a.txt", EntryTypeFile, 3, bytesProvider([]byte("xyz")))
	require.ErrorIs(t, err, ErrDuplicateEntry)
}

func TestAddEntry_RejectsEmptyPath(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.AddEntry(ctx, "", EntryTypeFile, 0, bytesProvider(nil))
	require.ErrorIs(t, err, ErrInvalidEntryPath)
}

func TestOpen_ReadModeRejectsWrites(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	raw, _ := a.Bytes()
	require.NoError(t, a.Close())

	reader, err := OpenInMemory(ctx, raw, AccessModeRead)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.AddEntry(ctx, "x.txt", EntryTypeFile, 1, bytesProvider([]byte("x")))
	require.ErrorIs(t, err, ErrUnwritableArchive)
}

func TestGet_FindsExistingPathAndReportsMissing(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.AddEntry(ctx, "a.txt", EntryTypeFile, 3, bytesProvider([]byte("one")))
	require.NoError(t, err)

	entry, ok, err := a.Get(ctx, "a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a.txt", entry.Path)

	_, ok, err = a.Get(ctx, "missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}
