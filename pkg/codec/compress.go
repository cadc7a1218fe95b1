package codec

import (
	"bytes"
	"io"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compressor compresses and decompresses whole values.
type Compressor interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// ErrUnknownCompressor is returned by CompressorByName for unsupported names.
var ErrUnknownCompressor = errors.New("codec: unknown compressor")

// Compressor names accepted in database descriptors.
const (
	CompressZlib    = "zlib"
	CompressDeflate = "def"
	CompressGzip    = "gz"
	CompressSnappy  = "snappy"
	CompressZstd    = "zstd"
)

var compressors = map[string]Compressor{
	CompressZlib:    streamCompressor{name: CompressZlib, newWriter: newZlibWriter, newReader: zlib.NewReader},
	CompressDeflate: streamCompressor{name: CompressDeflate, newWriter: newFlateWriter, newReader: newFlateReader},
	CompressGzip:    streamCompressor{name: CompressGzip, newWriter: newGzipWriter, newReader: newGzipReader},
	CompressSnappy:  snappyCompressor{},
	CompressZstd:    &zstdCompressor{},
}

// CompressorByName returns the compressor registered under name.
func CompressorByName(name string) (Compressor, error) {
	c, ok := compressors[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCompressor, "%q", name)
	}
	return c, nil
}

// CompressorNames lists the supported compressor names in sorted order.
func CompressorNames() []string {
	names := make([]string, 0, len(compressors))
	for n := range compressors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type streamCompressor struct {
	name      string
	newWriter func(io.Writer) (io.WriteCloser, error)
	newReader func(io.Reader) (io.ReadCloser, error)
}

func (s streamCompressor) Name() string { return s.name }

func (s streamCompressor) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := s.newWriter(&buf)
	if err != nil {
		return nil, errors.Wrapf(err, "%s writer", s.name)
	}
	if _, err := w.Write(src); err != nil {
		return nil, errors.Wrapf(err, "%s compress", s.name)
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrapf(err, "%s close", s.name)
	}
	return buf.Bytes(), nil
}

func (s streamCompressor) Decompress(src []byte) ([]byte, error) {
	r, err := s.newReader(bytes.NewReader(src))
	if err != nil {
		return nil, errors.Wrapf(err, "%s reader", s.name)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "%s decompress", s.name)
	}
	return out, nil
}

func newZlibWriter(w io.Writer) (io.WriteCloser, error) { return zlib.NewWriter(w), nil }

func newFlateWriter(w io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(w, flate.DefaultCompression)
}

func newFlateReader(r io.Reader) (io.ReadCloser, error) { return flate.NewReader(r), nil }

func newGzipWriter(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriter(w), nil }

func newGzipReader(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) }

type snappyCompressor struct{}

func (snappyCompressor) Name() string { return CompressSnappy }

func (snappyCompressor) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (snappyCompressor) Decompress(src []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, errors.Wrap(err, "snappy decompress")
	}
	return out, nil
}

type zstdCompressor struct {
	once sync.Once
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	err  error
}

func (z *zstdCompressor) init() error {
	z.once.Do(func() {
		z.enc, z.err = zstd.NewWriter(nil)
		if z.err != nil {
			return
		}
		z.dec, z.err = zstd.NewReader(nil)
	})
	return z.err
}

func (z *zstdCompressor) Name() string { return CompressZstd }

func (z *zstdCompressor) Compress(src []byte) ([]byte, error) {
	if err := z.init(); err != nil {
		return nil, errors.Wrap(err, "zstd init")
	}
	return z.enc.EncodeAll(src, nil), nil
}

func (z *zstdCompressor) Decompress(src []byte) ([]byte, error) {
	if err := z.init(); err != nil {
		return nil, errors.Wrap(err, "zstd init")
	}
	out, err := z.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, errors.Wrap(err, "zstd decompress")
	}
	return out, nil
}
