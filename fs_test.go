package zipvault

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFSArchive(t *testing.T) *Archive {
	t.Helper()
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	files := map[string]string{
		"a.txt":         "top level file",
		"dir/b.txt":     "nested under dir",
		"dir/sub/c.txt": "nested two levels deep",
	}
	for _, name := range []string{"a.txt", "dir/b.txt", "dir/sub/c.txt"} {
		content := files[name]
		_, err := a.AddEntry(ctx, name, EntryTypeFile, int64(len(content)), bytesProvider([]byte(content)))
		require.NoError(t, err)
	}
	return a
}

func TestArchiveFS_ConformsToFSTest(t *testing.T) {
	a := newTestFSArchive(t)
	fsys := a.FS()

	err := fstest.TestFS(fsys, "a.txt", "dir/b.txt", "dir/sub/c.txt")
	assert.NoError(t, err)
}

func TestArchiveFS_ReadsFileContent(t *testing.T) {
	a := newTestFSArchive(t)
	fsys := a.FS()

	f, err := fsys.Open("dir/b.txt")
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "nested under dir", string(data))
}

func TestArchiveFS_ReadDirListsImplicitDirectory(t *testing.T) {
	a := newTestFSArchive(t)
	fsys := a.FS()

	entries, err := fs.ReadDir(fsys, "dir")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"b.txt", "sub"}, names)
}

func TestArchiveFS_OpenMissingReturnsNotExist(t *testing.T) {
	a := newTestFSArchive(t)
	fsys := a.FS()

	_, err := fsys.Open("does/not/exist.txt")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestFsFile_CloseCancelsExtractGoroutine(t *testing.T) {
	ctx := context.Background()

	a, err := OpenInMemory(ctx, nil, AccessModeCreate)
	require.NoError(t, err)
	defer a.Close()

	content := make([]byte, 1<<20)
	_, err = a.AddEntry(ctx, "big.bin", EntryTypeFile, int64(len(content)), bytesProvider(content),
		WithCompressionMethod(CompressionStored))
	require.NoError(t, err)

	f, err := a.FS().Open("big.bin")
	require.NoError(t, err)

	buf := make([]byte, 4096)
	_, err = f.Read(buf)
	require.NoError(t, err)

	require.NoError(t, f.Close())
	assert.True(t, f.(*fsFile).progress.Cancelled())
}
