package zipvault

import (
	"context"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

var (
	_ fs.FS        = (*archiveFS)(nil)
	_ fs.StatFS    = (*archiveFS)(nil)
	_ fs.ReadDirFS = (*archiveFS)(nil)
)

// archiveFS adapts an Archive to io/fs, so entries can be walked and read
// with the standard library's filesystem tooling. fs.FS has no context
// parameter, so every call uses context.Background() internally; callers
// needing cancellation should use Archive.Extract directly.
type archiveFS struct {
	a *Archive
}

// FS returns an io/fs view over the archive's current entries.
func (a *Archive) FS() fs.FS {
	return &archiveFS{a: a}
}

// Open implements fs.FS.
func (zfs *archiveFS) Open(name string) (fs.File, error) {
	entry, isDir, err := zfs.resolve(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if isDir {
		return &fsDir{zfs: zfs, name: name, entry: entry}, nil
	}
	file, err := newFsFile(context.Background(), zfs.a, entry)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return file, nil
}

// Stat implements fs.StatFS.
func (zfs *archiveFS) Stat(name string) (fs.FileInfo, error) {
	entry, isDir, err := zfs.resolve(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return fileInfoAdapter{name: path.Base(name), entry: entry, isDir: isDir}, nil
}

// ReadDir implements fs.ReadDirFS.
func (zfs *archiveFS) ReadDir(name string) ([]fs.DirEntry, error) {
	file, err := zfs.Open(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	defer file.Close()

	dir, ok := file.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return dir.ReadDir(-1)
}

// resolve finds the entry for name, returning isDir=true for both explicit
// directory entries and implicit ones inferred from a deeper entry's path
// (ZIP archives are not required to carry directory entries for every
// prefix actually populated).
func (zfs *archiveFS) resolve(name string) (Entry, bool, error) {
	if name == "." {
		return Entry{}, true, nil
	}
	if !fs.ValidPath(name) {
		return Entry{}, false, fs.ErrInvalid
	}

	entries, err := zfs.a.Entries(context.Background())
	if err != nil {
		return Entry{}, false, err
	}

	for _, e := range entries {
		if strings.TrimSuffix(e.Path, "/") == name {
			return e, e.Type == EntryTypeDirectory, nil
		}
	}

	prefix := name + "/"
	for _, e := range entries {
		if strings.HasPrefix(e.Path, prefix) {
			return Entry{}, true, nil
		}
	}

	return Entry{}, false, fs.ErrNotExist
}

// newFsFile opens a streaming reader over entry's decompressed data. Extract
// is consumer-callback shaped rather than io.Reader shaped, so the bridge
// runs Extract in a background goroutine writing into an io.Pipe; Close
// cancels that goroutine via the Progress token rather than leaking it.
func newFsFile(ctx context.Context, a *Archive, entry Entry) (fs.File, error) {
	pr, pw := io.Pipe()
	progress := NewProgress()

	go func() {
		_, err := a.Extract(ctx, entry, func(chunk []byte) error {
			_, werr := pw.Write(chunk)
			return werr
		}, WithExtractProgress(progress))
		pw.CloseWithError(err)
	}()

	return &fsFile{entry: entry, pr: pr, progress: progress}, nil
}

// fsFile wraps one entry's streamed data to satisfy fs.File.
type fsFile struct {
	entry    Entry
	pr       *io.PipeReader
	progress *Progress
}

func (f *fsFile) Stat() (fs.FileInfo, error) {
	return fileInfoAdapter{name: path.Base(f.entry.Path), entry: f.entry}, nil
}
func (f *fsFile) Read(b []byte) (int, error) { return f.pr.Read(b) }
func (f *fsFile) Close() error {
	f.progress.Cancel()
	return f.pr.Close()
}

// fsDir wraps a directory (explicit or implicit) to satisfy fs.ReadDirFile.
type fsDir struct {
	zfs    *archiveFS
	name   string
	entry  Entry
	offset int // children already returned by ReadDir
}

func (d *fsDir) Stat() (fs.FileInfo, error) {
	return fileInfoAdapter{name: path.Base(d.name), entry: d.entry, isDir: true}, nil
}
func (d *fsDir) Close() error { return nil }
func (d *fsDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

// ReadDir lists the direct children of d by scanning every entry's path for
// the dir's prefix, collapsing deeper paths into their first path segment.
// Successive calls continue after the children already returned.
func (d *fsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	entries, err := d.zfs.a.Entries(context.Background())
	if err != nil {
		return nil, err
	}

	dirPath := d.name
	if dirPath == "." {
		dirPath = ""
	} else if !strings.HasSuffix(dirPath, "/") {
		dirPath += "/"
	}

	seen := make(map[string]bool)
	var out []fs.DirEntry
	for _, e := range entries {
		if !strings.HasPrefix(e.Path, dirPath) {
			continue
		}
		rel := strings.TrimPrefix(e.Path, dirPath)
		if rel == "" {
			continue
		}
		parts := strings.SplitN(rel, "/", 2)
		childName := parts[0]
		if seen[childName] {
			continue
		}
		seen[childName] = true

		isDir := len(parts) > 1 || e.Type == EntryTypeDirectory
		infoEntry := e
		if isDir {
			// Describe a child directory the way Stat does: its explicit
			// entry if the archive has one, else the zero Entry.
			infoEntry, _, _ = d.zfs.resolve(dirPath + childName)
		}
		info := fileInfoAdapter{name: childName, entry: infoEntry, isDir: isDir}
		out = append(out, fsDirEntryAdapter{name: childName, isDir: isDir, info: info})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })

	rest := out[min(d.offset, len(out)):]
	if n <= 0 {
		d.offset += len(rest)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	rest = rest[:min(n, len(rest))]
	d.offset += len(rest)
	return rest, nil
}

// fileInfoAdapter satisfies fs.FileInfo for both real entries and the
// synthetic root/implicit directories resolve produces, which carry a zero
// Entry.
type fileInfoAdapter struct {
	name  string
	entry Entry
	isDir bool
}

func (i fileInfoAdapter) Name() string { return i.name }
func (i fileInfoAdapter) Size() int64 {
	if i.isDir {
		return 0
	}
	return int64(i.entry.UncompressedSize())
}
func (i fileInfoAdapter) Mode() fs.FileMode {
	if i.isDir {
		return fs.ModeDir | defaultDirPermissions
	}
	return i.entry.Permissions
}
func (i fileInfoAdapter) ModTime() time.Time {
	if i.isDir && i.entry.Path == "" {
		return time.Time{}
	}
	return i.entry.ModTime
}
func (i fileInfoAdapter) IsDir() bool      { return i.isDir }
func (i fileInfoAdapter) Sys() interface{} { return nil }

type fsDirEntryAdapter struct {
	name  string
	isDir bool
	info  fs.FileInfo
}

func (e fsDirEntryAdapter) Name() string               { return e.name }
func (e fsDirEntryAdapter) IsDir() bool                { return e.isDir }
func (e fsDirEntryAdapter) Type() fs.FileMode          { return e.info.Mode().Type() }
func (e fsDirEntryAdapter) Info() (fs.FileInfo, error) { return e.info, nil }
