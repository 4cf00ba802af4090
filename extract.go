package zipvault

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/brinkwood/zipvault/internal/format"
)

// extractConfig holds the tunables every Extract/ExtractToPath/ExtractRange
// call can override via ExtractOption (§10.1).
type extractConfig struct {
	bufferSize               int
	skipCRC32                bool
	allowUncontainedSymlinks bool
	progress                 *Progress
}

func defaultExtractConfig() extractConfig {
	return extractConfig{bufferSize: defaultBufferSize}
}

// ExtractOption mutates extraction behavior for one call.
type ExtractOption func(*extractConfig)

// WithExtractBufferSize overrides the default 16 KiB read chunk size.
func WithExtractBufferSize(n int) ExtractOption {
	return func(c *extractConfig) { c.bufferSize = n }
}

// WithSkipCRC32 disables CRC-32 verification on extract.
func WithSkipCRC32(skip bool) ExtractOption {
	return func(c *extractConfig) { c.skipCRC32 = skip }
}

// WithAllowUncontainedSymlinks permits ExtractToPath to materialize a
// symlink whose target escapes the destination directory.
func WithAllowUncontainedSymlinks() ExtractOption {
	return func(c *extractConfig) { c.allowUncontainedSymlinks = true }
}

// WithExtractProgress attaches a cancellation/progress token to the call.
func WithExtractProgress(p *Progress) ExtractOption {
	return func(c *extractConfig) { c.progress = p }
}

// dataOffset locates the start of an entry's data region by decoding its
// local file header (§4.5 step 1).
func (a *Archive) dataOffset(ctx context.Context, e Entry) (int64, error) {
	if err := a.source.Seek(ctx, int64(e.RelativeOffset())); err != nil {
		return 0, err
	}
	sig, err := readSignature(ctx, a.source)
	if err != nil {
		return 0, err
	}
	if sig != format.LocalFileHeaderSignature {
		return 0, fmt.Errorf("%w: at offset %d", ErrLocalHeaderNotFound, e.RelativeOffset())
	}

	var lenBuf [26]byte
	if _, err := io.ReadFull(sourceReader{ctx: ctx, src: a.source}, lenBuf[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidLocalHeaderSize, err)
	}
	nameLen := int(lenBuf[22]) | int(lenBuf[23])<<8
	extraLen := int(lenBuf[24]) | int(lenBuf[25])<<8

	return int64(e.RelativeOffset()) + format.LocalFileHeaderLen + int64(nameLen) + int64(extraLen), nil
}

// Extract streams an entry's decompressed data to consumer in chunks,
// returning the verified CRC-32.
func (a *Archive) Extract(ctx context.Context, e Entry, consumer func([]byte) error, opts ...ExtractOption) (uint32, error) {
	cfg := defaultExtractConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validateBufferSize(cfg.bufferSize); err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	outcome := outcomeSuccess
	defer func() { a.metrics.observe(operationExtract, outcome, int64(e.UncompressedSize())) }()

	crc, err := a.extractLocked(ctx, e, consumer, cfg)
	if err != nil {
		if errors.Is(err, ErrCancelledOperation) {
			outcome = outcomeCancelled
		} else {
			outcome = outcomeError
		}
	}
	return crc, err
}

func (a *Archive) extractLocked(ctx context.Context, e Entry, consumer func([]byte) error, cfg extractConfig) (uint32, error) {
	cfg.progress.setTotal(int64(e.UncompressedSize()))

	switch e.Type {
	case EntryTypeDirectory:
		if err := consumer(nil); err != nil {
			return 0, err
		}
		return 0, nil

	case EntryTypeSymlink:
		data, crc, err := a.readSymlinkTarget(ctx, e)
		if err != nil {
			return 0, err
		}
		if !cfg.skipCRC32 && crc != e.CRC32 {
			return 0, fmt.Errorf("%w: entry %q", ErrInvalidCRC32, e.Path)
		}
		if err := consumer(data); err != nil {
			return 0, err
		}
		return crc, nil

	default:
		return a.extractFile(ctx, e, consumer, cfg)
	}
}

func (a *Archive) readSymlinkTarget(ctx context.Context, e Entry) ([]byte, uint32, error) {
	offset, err := a.dataOffset(ctx, e)
	if err != nil {
		return nil, 0, err
	}
	if err := a.source.Seek(ctx, offset); err != nil {
		return nil, 0, err
	}
	data, err := readFull(ctx, a.source, int(e.CompressedSize()))
	if err != nil {
		return nil, 0, err
	}
	return data, crc32.ChecksumIEEE(data), nil
}

func (a *Archive) extractFile(ctx context.Context, e Entry, consumer func([]byte) error, cfg extractConfig) (uint32, error) {
	offset, err := a.dataOffset(ctx, e)
	if err != nil {
		return 0, err
	}
	if err := a.source.Seek(ctx, offset); err != nil {
		return 0, err
	}

	limited := io.LimitReader(sourceReader{ctx: ctx, src: a.source}, int64(e.CompressedSize()))
	decomp, err := NewDecompressor(e.CompressionMethod, limited, int64(e.UncompressedSize()))
	if err != nil {
		return 0, err
	}
	defer decomp.Close()

	checksum := crc32.NewIEEE()
	buf := make([]byte, cfg.bufferSize)
	for {
		if err := checkCancel(cfg.progress); err != nil {
			return 0, err
		}
		n, readErr := decomp.Read(buf)
		if n > 0 {
			checksum.Write(buf[:n])
			cfg.progress.addDone(int64(n))
			if err := consumer(buf[:n]); err != nil {
				return 0, err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return 0, fmt.Errorf("%w: %v", ErrCorruptedData, readErr)
		}
		if n == 0 {
			break
		}
	}

	crc := checksum.Sum32()
	if !cfg.skipCRC32 && crc != e.CRC32 {
		return 0, fmt.Errorf("%w: entry %q", ErrInvalidCRC32, e.Path)
	}
	return crc, nil
}

// ExtractToPath extracts an entry's data to destDir/entry.Path, creating
// parent directories, applying permissions and modification time, and
// validating symlink containment (§4.5 step 4, §4.8).
func (a *Archive) ExtractToPath(ctx context.Context, e Entry, destDir string, opts ...ExtractOption) (uint32, error) {
	targetPath, err := resolveExtractPath(e.Path, destDir)
	if err != nil {
		return 0, err
	}

	cfg := defaultExtractConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	switch e.Type {
	case EntryTypeDirectory:
		if err := os.MkdirAll(targetPath, e.Permissions|defaultDirPermissions); err != nil {
			return 0, fmt.Errorf("create directory %q: %w", targetPath, err)
		}
		return 0, nil

	case EntryTypeSymlink:
		if _, err := os.Lstat(targetPath); err == nil {
			return 0, fmt.Errorf("%w: %q already exists", ErrDuplicateEntry, targetPath)
		}
		data, crc, err := func() ([]byte, uint32, error) {
			a.mu.Lock()
			defer a.mu.Unlock()
			return a.readSymlinkTarget(ctx, e)
		}()
		if err != nil {
			return 0, err
		}
		target := string(data)
		if err := checkSymlinkContainment(destDir, targetPath, target, cfg.allowUncontainedSymlinks); err != nil {
			return 0, err
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), defaultDirPermissions); err != nil {
			return 0, fmt.Errorf("create parent directory for %q: %w", targetPath, err)
		}
		if err := os.Symlink(target, targetPath); err != nil {
			return 0, fmt.Errorf("create symlink %q: %w", targetPath, err)
		}
		return crc, nil

	default:
		if _, err := os.Lstat(targetPath); err == nil {
			return 0, fmt.Errorf("%w: %q already exists", ErrDuplicateEntry, targetPath)
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), defaultDirPermissions); err != nil {
			return 0, fmt.Errorf("create parent directory for %q: %w", targetPath, err)
		}

		perm := e.Permissions
		if perm == 0 {
			perm = defaultFilePermissions
		}
		f, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err != nil {
			return 0, fmt.Errorf("create file %q: %w", targetPath, err)
		}
		defer f.Close()

		crc, err := a.Extract(ctx, e, func(chunk []byte) error {
			_, writeErr := f.Write(chunk)
			return writeErr
		}, opts...)
		if err != nil {
			return 0, err
		}
		if !e.ModTime.IsZero() {
			_ = os.Chtimes(targetPath, e.ModTime, e.ModTime)
		}
		return crc, nil
	}
}

// ExtractRange streams the bytes of an entry's uncompressed data in
// [lo, hi) to consumer (§4.5 Ranged extraction). Only file entries support
// ranged extraction.
func (a *Archive) ExtractRange(ctx context.Context, e Entry, lo, hi int64, consumer func([]byte) error, opts ...ExtractOption) error {
	if e.Type != EntryTypeFile {
		return fmt.Errorf("%w: %q", ErrEntryIsNotAFile, e.Path)
	}
	if lo < 0 || hi < lo || uint64(hi) > e.UncompressedSize() {
		return fmt.Errorf("%w: [%d, %d) over %d bytes", ErrRangeOutOfBounds, lo, hi, e.UncompressedSize())
	}

	cfg := defaultExtractConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validateBufferSize(cfg.bufferSize); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if e.CompressionMethod == CompressionStored {
		return a.extractStoredRange(ctx, e, lo, hi, consumer, cfg)
	}
	return a.extractDeflateRange(ctx, e, lo, hi, consumer, cfg)
}

func (a *Archive) extractStoredRange(ctx context.Context, e Entry, lo, hi int64, consumer func([]byte) error, cfg extractConfig) error {
	offset, err := a.dataOffset(ctx, e)
	if err != nil {
		return err
	}
	if err := a.source.Seek(ctx, offset+lo); err != nil {
		return err
	}

	remaining := hi - lo
	buf := make([]byte, cfg.bufferSize)
	for remaining > 0 {
		if err := checkCancel(cfg.progress); err != nil {
			return err
		}
		n := min(int64(len(buf)), remaining)
		chunk, err := a.source.Read(ctx, int(n))
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return fmt.Errorf("%w: unexpected end of data", ErrCorruptedData)
		}
		if err := consumer(chunk); err != nil {
			return err
		}
		remaining -= int64(len(chunk))
	}
	return nil
}

func (a *Archive) extractDeflateRange(ctx context.Context, e Entry, lo, hi int64, consumer func([]byte) error, cfg extractConfig) error {
	offset, err := a.dataOffset(ctx, e)
	if err != nil {
		return err
	}
	if err := a.source.Seek(ctx, offset); err != nil {
		return err
	}

	limited := io.LimitReader(sourceReader{ctx: ctx, src: a.source}, int64(e.CompressedSize()))
	decomp, err := NewDecompressor(e.CompressionMethod, limited, int64(e.UncompressedSize()))
	if err != nil {
		return err
	}
	defer decomp.Close()

	var produced int64
	buf := make([]byte, cfg.bufferSize)
	for {
		if err := checkCancel(cfg.progress); err != nil {
			return err
		}
		n, readErr := decomp.Read(buf)
		if n > 0 {
			chunkStart := produced
			chunkEnd := produced + int64(n)
			produced = chunkEnd

			if chunkEnd > lo && chunkStart < hi {
				sliceLo := max(int64(0), lo-chunkStart)
				sliceHi := min(int64(n), hi-chunkStart)
				if sliceHi > sliceLo {
					if err := consumer(buf[sliceLo:sliceHi]); err != nil {
						return err
					}
				}
			}
			if produced >= hi {
				return nil
			}
		}
		if readErr == io.EOF || n == 0 {
			if produced < hi {
				return fmt.Errorf("%w: only %d of %d bytes available", ErrCorruptedData, produced, hi)
			}
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("%w: %v", ErrCorruptedData, readErr)
		}
	}
}
