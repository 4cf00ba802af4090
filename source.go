package zipvault

import (
	"context"
	"fmt"
)

// Source is the read-only byte-source capability an Archive is built on: a
// single cursor over a random-access range of bytes. It never interprets
// ZIP structure; it is a pure byte layer (§4.1).
type Source interface {
	// Length returns the total size of the underlying range.
	Length(ctx context.Context) (int64, error)

	// Position reports the current cursor offset.
	Position() int64

	// Seek moves the cursor to an absolute offset. It does not validate the
	// offset against Length; a subsequent Read at or past Length returns
	// zero bytes with a nil error.
	Seek(ctx context.Context, offset int64) error

	// Read returns up to n bytes starting at the current cursor and
	// advances it by the number of bytes returned. A short read at
	// end-of-source returns fewer bytes with a nil error; reading at or past
	// Length returns zero bytes with a nil error.
	Read(ctx context.Context, n int) ([]byte, error)

	// Close releases any resources held by the source.
	Close() error
}

// WritableSource extends Source with the mutating operations the append and
// remove protocols (§4.6, §4.7) need.
type WritableSource interface {
	Source

	// Write appends p at the current cursor, overwriting any existing bytes
	// there, and advances the cursor by len(p).
	Write(ctx context.Context, p []byte) error

	// WriteLargeChunk writes data in pieces no larger than bufferSize,
	// checking ctx between pieces so a caller streaming a large payload can
	// observe cancellation without buffering the whole thing at once.
	WriteLargeChunk(ctx context.Context, data []byte, bufferSize int) error

	// Truncate resizes the underlying range to length, discarding any bytes
	// beyond it. The cursor is left wherever it was if still in range, or
	// clamped to length otherwise.
	Truncate(ctx context.Context, length int64) error

	// Flush guarantees that prior writes are durable before it returns.
	Flush(ctx context.Context) error
}

// asWritable recovers the write capability from a Source the way §9
// describes: a type assertion standing in for a boolean-capability check.
func asWritable(src Source) (WritableSource, bool) {
	w, ok := src.(WritableSource)
	return w, ok
}

func requireWritable(src Source) (WritableSource, error) {
	w, ok := asWritable(src)
	if !ok {
		return nil, fmt.Errorf("%w: source is read-only", ErrUnwritableArchive)
	}
	return w, nil
}

// writeLargeChunkInPieces is the shared WriteLargeChunk implementation for
// sources whose Write has no natural chunking of its own (file, memory).
// HTTP sources never implement WritableSource at all (§4.1).
func writeLargeChunkInPieces(ctx context.Context, w WritableSource, data []byte, bufferSize int) error {
	if bufferSize <= 0 {
		return ErrInvalidBufferSize
	}
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(bufferSize, len(data))
		if err := w.Write(ctx, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
