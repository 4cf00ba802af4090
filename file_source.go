package zipvault

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// fileSource is a random-access Source/WritableSource over a regular file.
// It keeps no buffer of its own: every Read and Write goes straight to
// ReadAt/WriteAt on the file. It tracks its own length so Length never needs
// a syscall on the hot path, updating it on Write and Truncate.
type fileSource struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	position int64
	length   int64
}

// openFileSource opens path for random-access read (and, if writable,
// write) access and measures its current length.
func openFileSource(path string, writable bool) (*fileSource, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("open file source: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file source: %w", err)
	}
	return &fileSource{file: f, path: path, length: info.Size()}, nil
}

// createFileSource creates a new, empty, writable file at path. It fails if
// path already exists, matching AccessModeCreate's precondition.
func createFileSource(path string) (*fileSource, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create file source: %w", err)
	}
	return &fileSource{file: f, path: path}, nil
}

func (s *fileSource) Length(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.length, nil
}

func (s *fileSource) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *fileSource) Seek(ctx context.Context, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = offset
	return nil
}

func (s *fileSource) Read(ctx context.Context, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, ErrInvalidBufferSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position >= s.length {
		return nil, nil
	}
	want := n
	if remaining := s.length - s.position; int64(want) > remaining {
		want = int(remaining)
	}

	buf := make([]byte, want)
	read, err := s.file.ReadAt(buf, s.position)
	s.position += int64(read)
	if err != nil && read == 0 {
		return nil, fmt.Errorf("read file source: %w", err)
	}
	return buf[:read], nil
}

func (s *fileSource) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	written, err := s.file.WriteAt(p, s.position)
	s.position += int64(written)
	if s.position > s.length {
		s.length = s.position
	}
	if err != nil {
		return fmt.Errorf("write file source: %w", err)
	}
	return nil
}

func (s *fileSource) WriteLargeChunk(ctx context.Context, data []byte, bufferSize int) error {
	return writeLargeChunkInPieces(ctx, s, data, bufferSize)
}

func (s *fileSource) Truncate(ctx context.Context, length int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.file.Truncate(length); err != nil {
		return fmt.Errorf("truncate file source: %w", err)
	}
	s.length = length
	if s.position > length {
		s.position = length
	}
	return nil
}

func (s *fileSource) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("flush file source: %w", err)
	}
	return nil
}

func (s *fileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
