package compression

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"google.golang.org/grpc/encoding"
)

const (
	// Gzip is the name of the gzip compressor.
	Gzip = "gzip"
	// Zstd is the name of the zstd compressor.
	Zstd = "zstd"
)

// ErrUnknownCompressor is returned by Resolve for unregistered names.
var ErrUnknownCompressor = errors.New("compressor is not registered")

// Default is used when compression is enabled without a compressor name.
const Default = Gzip

var registerOnce sync.Once

// Register installs the gzip and zstd compressors into the gRPC encoding
// registry. It must run before any connection is built; later calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		encoding.RegisterCompressor(newGzip())
		encoding.RegisterCompressor(newZstd())
	})
}

// Resolve maps a configured compressor name to a registered one.
func Resolve(name string) (string, error) {
	if name == "" {
		return Default, nil
	}
	if encoding.GetCompressor(name) == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownCompressor, name)
	}
	return name, nil
}

type gzipCompressor struct {
	writers sync.Pool
	readers sync.Pool
}

func newGzip() *gzipCompressor {
	c := &gzipCompressor{}
	c.writers.New = func() any {
		return &gzipWriter{Writer: gzip.NewWriter(io.Discard), pool: &c.writers}
	}
	return c
}

func (c *gzipCompressor) Name() string { return Gzip }

func (c *gzipCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	z := c.writers.Get().(*gzipWriter)
	z.Reset(w)
	return z, nil
}

func (c *gzipCompressor) Decompress(r io.Reader) (io.Reader, error) {
	z, ok := c.readers.Get().(*gzipReader)
	if !ok {
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return &gzipReader{Reader: gr, pool: &c.readers}, nil
	}
	if err := z.Reset(r); err != nil {
		c.readers.Put(z)
		return nil, err
	}
	return z, nil
}

type gzipWriter struct {
	*gzip.Writer
	pool *sync.Pool
}

func (z *gzipWriter) Close() error {
	defer z.pool.Put(z)
	return z.Writer.Close()
}

type gzipReader struct {
	*gzip.Reader
	pool *sync.Pool
}

func (z *gzipReader) Read(p []byte) (int, error) {
	n, err := z.Reader.Read(p)
	if err == io.EOF {
		z.pool.Put(z)
	}
	return n, err
}

type zstdCompressor struct {
	encoders sync.Pool
	decoders sync.Pool
}

func newZstd() *zstdCompressor {
	c := &zstdCompressor{}
	c.encoders.New = func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		return &zstdWriter{Encoder: enc, pool: &c.encoders}
	}
	return c
}

func (c *zstdCompressor) Name() string { return Zstd }

func (c *zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	z := c.encoders.Get().(*zstdWriter)
	z.Reset(w)
	return z, nil
}

func (c *zstdCompressor) Decompress(r io.Reader) (io.Reader, error) {
	z, ok := c.decoders.Get().(*zstdReader)
	if !ok {
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return &zstdReader{Decoder: dec, pool: &c.decoders}, nil
	}
	if err := z.Reset(r); err != nil {
		c.decoders.Put(z)
		return nil, err
	}
	return z, nil
}

type zstdWriter struct {
	*zstd.Encoder
	pool *sync.Pool
}

func (z *zstdWriter) Close() error {
	defer z.pool.Put(z)
	return z.Encoder.Close()
}

type zstdReader struct {
	*zstd.Decoder
	pool *sync.Pool
}

func (z *zstdReader) Read(p []byte) (int, error) {
	n, err := z.Decoder.Read(p)
	if err == io.EOF {
		z.pool.Put(z)
	}
	return n, err
}
