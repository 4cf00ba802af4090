package zipvault

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEntry_CancellationLeavesArchiveUnchanged(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.AddEntry(ctx, "first.txt", EntryTypeFile, 5, bytesProvider([]byte("hello")))
	require.NoError(t, err)

	before, _ := a.Bytes()
	beforeEntries, err := a.Entries(ctx)
	require.NoError(t, err)

	progress := NewProgress()
	chunks := 0
	provider := func(_ context.Context, position int64, bufferSize int) ([]byte, error) {
		chunks++
		if chunks == 2 {
			progress.Cancel()
		}
		if position >= 256 {
			return nil, nil
		}
		return []byte("x"), nil
	}

	_, err = a.AddEntry(ctx, "second.txt", EntryTypeFile, 256, provider, WithAddProgress(progress))
	require.ErrorIs(t, err, ErrCancelledOperation)

	after, _ := a.Bytes()
	assert.Equal(t, before, after, "a cancelled AddEntry must leave the archive's bytes untouched")

	afterEntries, err := a.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, beforeEntries, afterEntries)
}

func TestAddEntry_Zip64Promotion(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	a.setZip64ThresholdForTesting(32)

	content := bytes.Repeat([]byte("a"), 200)
	entry, err := a.AddEntry(ctx, "big.txt", EntryTypeFile, int64(len(content)), bytesProvider(content),
		WithCompressionMethod(CompressionStored))
	require.NoError(t, err)
	assert.True(t, entry.IsZIP64())
	assert.Equal(t, uint64(len(content)), entry.UncompressedSize())

	raw, ok := a.Bytes()
	require.True(t, ok)

	reopened, err := OpenInMemory(ctx, raw, AccessModeRead)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsZIP64())

	data, _, err := collectExtract(ctx, reopened, entries[0])
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestAddEntry_DirectoryPathGetsTrailingSlash(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	entry, err := a.AddEntry(ctx, "subdir", EntryTypeDirectory, 0, bytesProvider(nil))
	require.NoError(t, err)
	assert.Equal(t, "subdir/", entry.Path)

	raw, _ := a.Bytes()
	reopened, err := OpenInMemory(ctx, raw, AccessModeRead)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get(ctx, "subdir/")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, EntryTypeDirectory, got.Type)
}
