package zipvault

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// CompressionMethod identifies the algorithm an entry's data is encoded
// with. Only the two values below are accepted; anything else decodes to
// ErrInvalidCompressionMethod.
type CompressionMethod uint16

const (
	CompressionStored  CompressionMethod = 0
	CompressionDeflate CompressionMethod = 8
)

func (m CompressionMethod) String() string {
	switch m {
	case CompressionStored:
		return "stored"
	case CompressionDeflate:
		return "deflate"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(m))
	}
}

// Compressor streams uncompressed bytes written to it out to an underlying
// destination in compressed form, flushing any buffered output on Close.
type Compressor interface {
	io.WriteCloser
}

// Decompressor streams compressed bytes read from an underlying source out
// as decompressed bytes.
type Decompressor interface {
	io.ReadCloser
}

// NewCompressor returns the Compressor for method writing to dst.
func NewCompressor(method CompressionMethod, dst io.Writer) (Compressor, error) {
	switch method {
	case CompressionStored:
		return &storedCompressor{dst: dst}, nil
	case CompressionDeflate:
		return newDeflateCompressor(dst), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidCompressionMethod, method)
	}
}

// NewDecompressor returns the Decompressor for method reading from src.
// uncompressedSize bounds a stored entry's read so it cannot run past its
// declared length even if the surrounding source has more bytes.
func NewDecompressor(method CompressionMethod, src io.Reader, uncompressedSize int64) (Decompressor, error) {
	switch method {
	case CompressionStored:
		return &storedDecompressor{r: io.LimitReader(src, uncompressedSize)}, nil
	case CompressionDeflate:
		return newDeflateDecompressor(src), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidCompressionMethod, method)
	}
}

// storedCompressor is a byte-for-byte passthrough: §4.6's "stored" path.
type storedCompressor struct {
	dst io.Writer
}

func (c *storedCompressor) Write(p []byte) (int, error) { return c.dst.Write(p) }
func (c *storedCompressor) Close() error                { return nil }

type storedDecompressor struct {
	r io.Reader
}

func (d *storedDecompressor) Read(p []byte) (int, error) { return d.r.Read(p) }
func (d *storedDecompressor) Close() error               { return nil }

// deflateWriterPool recycles klauspost/compress/flate writers the way the
// teacher's compression.go pools its own flate.Writer, avoiding the
// allocation and table-building cost of NewWriter on every AddEntry call.
var deflateWriterPool = sync.Pool{
	New: func() any {
		w, _ := flate.NewWriter(io.Discard, flate.DefaultCompression)
		return w
	},
}

type deflateCompressor struct {
	dst io.Writer
	fw  *flate.Writer
}

func newDeflateCompressor(dst io.Writer) *deflateCompressor {
	fw := deflateWriterPool.Get().(*flate.Writer)
	fw.Reset(dst)
	return &deflateCompressor{dst: dst, fw: fw}
}

func (c *deflateCompressor) Write(p []byte) (int, error) {
	return c.fw.Write(p)
}

func (c *deflateCompressor) Close() error {
	err := c.fw.Close()
	deflateWriterPool.Put(c.fw)
	c.fw = nil
	return err
}

// deflateReaderPool recycles klauspost/compress/flate readers the same way,
// on the extract side. The pooled value is the concrete reader returned by
// flate.NewReader, which satisfies both io.ReadCloser and flate.Resetter.
var deflateReaderPool = sync.Pool{
	New: func() any {
		return flate.NewReader(nil)
	},
}

type deflateDecompressor struct {
	rc io.ReadCloser
}

func newDeflateDecompressor(src io.Reader) *deflateDecompressor {
	rc := deflateReaderPool.Get().(io.ReadCloser)
	_ = rc.(flate.Resetter).Reset(src, nil)
	return &deflateDecompressor{rc: rc}
}

func (d *deflateDecompressor) Read(p []byte) (int, error) {
	return d.rc.Read(p)
}

func (d *deflateDecompressor) Close() error {
	err := d.rc.Close()
	deflateReaderPool.Put(d.rc)
	d.rc = nil
	return err
}
