package zipvault

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/brinkwood/zipvault/internal/format"
)

// Defaults matching §6: 16 KiB read/write chunks, 0o644/0o755 permissions.
const (
	defaultBufferSize      = 16 * 1024
	defaultFilePermissions = 0o644
	defaultDirPermissions  = 0o755
)

// AccessMode selects how Open/OpenInMemory treat the backing store (§3
// Lifecycle).
type AccessMode int

const (
	// AccessModeRead requires the archive to already exist and only permits
	// Entries/Extract.
	AccessModeRead AccessMode = iota
	// AccessModeCreate requires the archive to not already exist (file
	// sources) or starts from an empty buffer (in-memory sources), and
	// writes a minimal EOCD immediately.
	AccessModeCreate
	// AccessModeUpdate requires the archive to already exist and permits
	// Entries/Extract/AddEntry/Remove.
	AccessModeUpdate
)

func (m AccessMode) writable() bool { return m == AccessModeCreate || m == AccessModeUpdate }

// ArchiveConfig carries the ambient configuration knobs §10.1 describes:
// injected logger and metrics, mutated by OpenOption values before Open
// returns.
type ArchiveConfig struct {
	logger  *zap.Logger
	metrics *Metrics
}

// OpenOption mutates archive-wide configuration at Open/OpenInMemory time.
type OpenOption func(*ArchiveConfig)

// Archive is a random-access view over one ZIP byte source, serializing its
// public operations behind a single mutex (§5).
type Archive struct {
	mu      sync.Mutex
	source  Source
	mode    AccessMode
	logger  *zap.Logger
	metrics *Metrics

	entriesCached bool
	entries       []Entry
	comment       string

	// cdOffset/cdSize/totalEntries describe the central directory region as
	// last written or parsed; add/remove use them to snapshot and rebuild
	// the tail without re-deriving them from decoded entries (which omit
	// encrypted ones, see §4.8).
	cdOffset     uint64
	cdSize       uint64
	totalEntries uint64

	// zip64Threshold is the value at or above which a size, offset or entry
	// count is promoted: its classic field then carries the 0xFFFFFFFF/0xFFFF
	// wire sentinel and the real value moves to the ZIP64 extra field or
	// ZIP64 EOCD record. Defaults to the
	// real 32-bit limits; tests lower it to exercise promotion without
	// generating gigabytes of data (§8 scenario 3's "test knob").
	zip64Threshold uint64
}

func newArchive(src Source, mode AccessMode, opts []OpenOption) *Archive {
	cfg := ArchiveConfig{logger: defaultLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Archive{
		source:         src,
		mode:           mode,
		logger:         cfg.logger,
		metrics:        cfg.metrics,
		zip64Threshold: 0xFFFFFFFF,
	}
}

// Open opens the archive at path under mode.
func Open(ctx context.Context, path string, mode AccessMode, opts ...OpenOption) (*Archive, error) {
	switch mode {
	case AccessModeRead, AccessModeUpdate:
		src, err := openFileSource(path, mode == AccessModeUpdate)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrUnreadableArchive, path)
			}
			return nil, err
		}
		a := newArchive(src, mode, opts)
		if err := a.loadExisting(ctx); err != nil {
			src.Close()
			return nil, err
		}
		return a, nil

	case AccessModeCreate:
		src, err := createFileSource(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnwritableArchive, path, err)
		}
		a := newArchive(src, mode, opts)
		if err := a.writeMinimalEOCD(ctx); err != nil {
			src.Close()
			return nil, err
		}
		return a, nil

	default:
		return nil, fmt.Errorf("zipvault: unknown access mode %d", mode)
	}
}

// OpenInMemory opens an archive backed entirely by data (copied). A nil or
// empty data under AccessModeCreate starts an empty archive.
func OpenInMemory(ctx context.Context, data []byte, mode AccessMode, opts ...OpenOption) (*Archive, error) {
	src := newMemorySource(data)
	a := newArchive(src, mode, opts)

	switch mode {
	case AccessModeRead, AccessModeUpdate:
		if err := a.loadExisting(ctx); err != nil {
			return nil, err
		}
	case AccessModeCreate:
		if err := a.writeMinimalEOCD(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("zipvault: unknown access mode %d", mode)
	}
	return a, nil
}

// OpenHTTP opens a read-only archive fetched in ranges over HTTP (§4.1).
func OpenHTTP(ctx context.Context, url string, headers map[string]string, opts ...OpenOption) (*Archive, error) {
	src := openHTTPSource(url, headers)
	a := newArchive(src, AccessModeRead, opts)
	if err := a.loadExisting(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Bytes returns the current archive contents if it is backed by an
// in-memory source, and ok=false otherwise.
func (a *Archive) Bytes() (data []byte, ok bool) {
	ms, isMemory := a.source.(*memorySource)
	if !isMemory {
		return nil, false
	}
	return ms.Bytes(), true
}

// Close releases the archive's byte source.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.source.Close()
}

func (a *Archive) requireWritable() (WritableSource, error) {
	if !a.mode.writable() {
		return nil, fmt.Errorf("%w: archive opened in read mode", ErrUnwritableArchive)
	}
	return requireWritable(a.source)
}

func (a *Archive) invalidateCache() {
	a.entriesCached = false
	a.entries = nil
}

func (a *Archive) writeMinimalEOCD(ctx context.Context) error {
	ws, err := requireWritable(a.source)
	if err != nil {
		return err
	}
	record := format.EncodeEndOfCentralDirRecord(0, 0, 0, "")
	if err := ws.Write(ctx, record); err != nil {
		return err
	}
	if err := ws.Flush(ctx); err != nil {
		return err
	}
	a.cdOffset, a.cdSize, a.totalEntries = 0, 0, 0
	a.entries, a.comment, a.entriesCached = nil, "", true
	return nil
}

// setZip64ThresholdForTesting lowers the ZIP64 promotion decision boundary
// below the real 32-bit limit, so tests can exercise promotion without
// generating gigabyte-scale fixtures (§8 scenario 3).
func (a *Archive) setZip64ThresholdForTesting(n uint64) {
	a.zip64Threshold = n
}

// Entries returns the archive's entries in central directory order, loading
// and caching them on first call. Encrypted entries are omitted (§4.8) but
// logged at debug level.
func (a *Archive) Entries(ctx context.Context) ([]Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entriesLocked(ctx)
}

func (a *Archive) entriesLocked(ctx context.Context) ([]Entry, error) {
	if a.entriesCached {
		return a.entries, nil
	}
	entries, comment, err := a.readCentralDirectory(ctx)
	if err != nil {
		return nil, err
	}
	a.entries = entries
	a.comment = comment
	a.entriesCached = true
	return a.entries, nil
}

// Get returns the first entry whose path equals name. Duplicate paths are
// legal in ZIP; the first one wins (§4.3).
func (a *Archive) Get(ctx context.Context, name string) (Entry, bool, error) {
	entries, err := a.Entries(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.Path == name {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// Comment returns the archive-level comment trailing the EOCD record.
func (a *Archive) Comment(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.entriesCached {
		if _, err := a.entriesLocked(ctx); err != nil {
			return "", err
		}
	}
	return a.comment, nil
}
