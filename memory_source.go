package zipvault

import (
	"context"
	"sync"
)

// memorySource is a growable in-memory buffer behaving identically to
// fileSource, used for OpenInMemory archives and for building a remove's
// temporary archive without touching disk when the archive being rebuilt is
// itself memory-backed.
type memorySource struct {
	mu       sync.Mutex
	data     []byte
	position int64
}

func newMemorySource(initial []byte) *memorySource {
	buf := make([]byte, len(initial))
	copy(buf, initial)
	return &memorySource{data: buf}
}

func (s *memorySource) Length(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.data)), nil
}

func (s *memorySource) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *memorySource) Seek(ctx context.Context, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = offset
	return nil
}

func (s *memorySource) Read(ctx context.Context, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, ErrInvalidBufferSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position >= int64(len(s.data)) {
		return nil, nil
	}
	end := min(s.position+int64(n), int64(len(s.data)))
	out := make([]byte, end-s.position)
	copy(out, s.data[s.position:end])
	s.position = end
	return out, nil
}

func (s *memorySource) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	end := s.position + int64(len(p))
	if end > int64(len(s.data)) {
		grown := make([]byte, end)
		copy(grown, s.data)
		s.data = grown
	}
	copy(s.data[s.position:end], p)
	s.position = end
	return nil
}

func (s *memorySource) WriteLargeChunk(ctx context.Context, data []byte, bufferSize int) error {
	return writeLargeChunkInPieces(ctx, s, data, bufferSize)
}

func (s *memorySource) Truncate(ctx context.Context, length int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case length <= int64(len(s.data)):
		s.data = s.data[:length]
	default:
		grown := make([]byte, length)
		copy(grown, s.data)
		s.data = grown
	}
	if s.position > length {
		s.position = length
	}
	return nil
}

func (s *memorySource) Flush(ctx context.Context) error {
	return ctx.Err()
}

func (s *memorySource) Close() error {
	return nil
}

// Bytes returns a copy of the buffer's current contents, for callers that
// opened an in-memory archive and want the final bytes back out.
func (s *memorySource) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out
}
