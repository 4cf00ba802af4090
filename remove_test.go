package zipvault

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemove_MiddleEntry_Memory(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	contents := map[string][]byte{
		"a.txt": []byte("first entry data"),
		"b.txt": []byte("second entry data, the one we will remove"),
		"c.txt": []byte("third entry data"),
	}
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := a.AddEntry(ctx, name, EntryTypeFile, int64(len(contents[name])), bytesProvider(contents[name]))
		require.NoError(t, err)
	}

	entries, err := a.Entries(ctx)
	require.NoError(t, err)
	var target Entry
	for _, e := range entries {
		if e.Path == "b.txt" {
			target = e
		}
	}
	require.Equal(t, "b.txt", target.Path)

	require.NoError(t, a.Remove(ctx, target))

	remaining, err := a.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 2)

	for _, e := range remaining {
		data, crc, err := collectExtract(ctx, a, e)
		require.NoError(t, err)
		assert.Equal(t, contents[e.Path], data)
		assert.Equal(t, e.CRC32, crc)
	}

	_, ok, err := a.Get(ctx, "b.txt")
	require.NoError(t, err)
	assert.False(t, ok, "removed entry must no longer be visible")
}

func TestRemove_NonexistentEntry(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.AddEntry(ctx, "a.txt", EntryTypeFile, 3, bytesProvider([]byte("abc")))
	require.NoError(t, err)

	ghost := Entry{Path: "ghost.txt"}
	err = a.Remove(ctx, ghost)
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestRemove_FileBacked_RebuildsOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "archive.zip")

	a, err := Open(ctx, path, AccessModeCreate)
	require.NoError(t, err)

	contents := map[string][]byte{
		"one.txt":   []byte("one"),
		"two.txt":   []byte("two, a bit longer this time around"),
		"three.txt": []byte("three"),
	}
	for _, name := range []string{"one.txt", "two.txt", "three.txt"} {
		_, err := a.AddEntry(ctx, name, EntryTypeFile, int64(len(contents[name])), bytesProvider(contents[name]))
		require.NoError(t, err)
	}
	require.NoError(t, a.Close())

	updater, err := Open(ctx, path, AccessModeUpdate)
	require.NoError(t, err)
	target, ok, err := updater.Get(ctx, "two.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, updater.Remove(ctx, target))
	require.NoError(t, updater.Close())

	reader, err := Open(ctx, path, AccessModeRead)
	require.NoError(t, err)
	defer reader.Close()

	entries, err := reader.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	for _, e := range entries {
		data, _, err := collectExtract(ctx, reader, e)
		require.NoError(t, err)
		assert.Equal(t, contents[e.Path], data)
	}
}

func TestRemove_OnlyEntry_ProducesEmptyArchive(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.AddEntry(ctx, "solo.txt", EntryTypeFile, 4, bytesProvider([]byte("solo")))
	require.NoError(t, err)

	entry, ok, err := a.Get(ctx, "solo.txt")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, a.Remove(ctx, entry))

	entries, err := a.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
