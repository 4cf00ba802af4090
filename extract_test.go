package zipvault

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractToPath_RejectsTraversal(t *testing.T) {
	dest := t.TempDir()

	evil := Entry{Path: "../../etc/passwd", Type: EntryTypeFile}
	_, err := resolveExtractPath(evil.Path, dest)
	require.ErrorIs(t, err, ErrInvalidEntryPath)
}

func TestExtractToPath_RejectsUncontainedSymlink(t *testing.T) {
	ctx := context.Background()
	dest := t.TempDir()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	target := "/etc/passwd"
	_, err = a.AddEntry(ctx, "evil-link", EntryTypeSymlink, int64(len(target)), bytesProvider([]byte(target)))
	require.NoError(t, err)

	entry, ok, err := a.Get(ctx, "evil-link")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = a.ExtractToPath(ctx, entry, dest)
	require.ErrorIs(t, err, ErrUncontainedSymlink)
}

func TestExtractToPath_WritesFileWithContent(t *testing.T) {
	ctx := context.Background()
	dest := t.TempDir()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	content := []byte("hello from a nested file")
	_, err = a.AddEntry(ctx, "nested/dir/hello.txt", EntryTypeFile, int64(len(content)), bytesProvider(content))
	require.NoError(t, err)

	entry, ok, err := a.Get(ctx, "nested/dir/hello.txt")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = a.ExtractToPath(ctx, entry, dest)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dest, "nested", "dir", "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestExtractRange_Stored(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	content := []byte("0123456789abcdefghij")
	_, err = a.AddEntry(ctx, "range.bin", EntryTypeFile, int64(len(content)), bytesProvider(content),
		WithCompressionMethod(CompressionStored))
	require.NoError(t, err)

	entry, ok, err := a.Get(ctx, "range.bin")
	require.NoError(t, err)
	require.True(t, ok)

	var buf bytes.Buffer
	err = a.ExtractRange(ctx, entry, 5, 15, func(chunk []byte) error {
		buf.Write(chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, content[5:15], buf.Bytes())
}

func TestExtractRange_Deflate(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	content := bytes.Repeat([]byte("abcdefghij"), 50)
	_, err = a.AddEntry(ctx, "range.txt", EntryTypeFile, int64(len(content)), bytesProvider(content))
	require.NoError(t, err)

	entry, ok, err := a.Get(ctx, "range.txt")
	require.NoError(t, err)
	require.True(t, ok)

	var buf bytes.Buffer
	err = a.ExtractRange(ctx, entry, 100, 250, func(chunk []byte) error {
		buf.Write(chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, content[100:250], buf.Bytes())
}

func TestExtractRange_RejectsOutOfBounds(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	content := []byte("short")
	_, err = a.AddEntry(ctx, "short.txt", EntryTypeFile, int64(len(content)), bytesProvider(content))
	require.NoError(t, err)

	entry, ok, err := a.Get(ctx, "short.txt")
	require.NoError(t, err)
	require.True(t, ok)

	err = a.ExtractRange(ctx, entry, 0, 1000, func([]byte) error { return nil })
	require.ErrorIs(t, err, ErrRangeOutOfBounds)
}

func TestExtract_DetectsCorruptedData(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)

	content := []byte("integrity matters")
	_, err = a.AddEntry(ctx, "checked.txt", EntryTypeFile, int64(len(content)), bytesProvider(content),
		WithCompressionMethod(CompressionStored))
	require.NoError(t, err)

	raw, _ := a.Bytes()
	require.NoError(t, a.Close())

	// Flip a byte inside the entry's data region so its CRC no longer matches.
	entry, err := OpenInMemory(ctx, raw, AccessModeRead)
	require.NoError(t, err)
	e, found, err := entry.Get(ctx, "checked.txt")
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, entry.Close())

	dataStart := bytes.Index(raw, content)
	require.GreaterOrEqual(t, dataStart, 0)
	corrupted := append([]byte{}, raw...)
	corrupted[dataStart] ^= 0xFF

	reopened, err := OpenInMemory(ctx, corrupted, AccessModeRead)
	require.NoError(t, err)
	defer reopened.Close()

	_, _, err = collectExtract(ctx, reopened, e)
	require.ErrorIs(t, err, ErrInvalidCRC32)
}
