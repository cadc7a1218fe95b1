package codec

import (
	"bufio"
	"io"

	"github.com/cockroachdb/errors"
)

// StreamReader decodes consecutive records from a byte stream.
type StreamReader struct {
	r      *bufio.Reader
	codec  *RecordCodec
	offset int64
}

// NewStreamReader wraps r; offset is the stream position r starts at.
func NewStreamReader(r io.Reader, offset int64) *StreamReader {
	return &StreamReader{r: bufio.NewReader(r), codec: NewRecordCodec(), offset: offset}
}

// Next reads and validates the next record. It returns io.EOF at a clean end
// of stream, an error wrapping ErrShortRecord for a truncated tail, and one
// wrapping ErrChecksum for a corrupted record.
func (s *StreamReader) Next() (*Record, error) {
	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(s.r, header)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err == io.ErrUnexpectedEOF {
		return nil, errors.Wrapf(ErrShortRecord, "header at offset %d (%d bytes)", s.offset, n)
	}
	if err != nil {
		return nil, err
	}

	r, err := s.codec.DecodeHeader(header)
	if err != nil {
		return nil, err
	}
	dataSize := int64(r.KeySize) + int64(r.ValueSize)
	data := make([]byte, HeaderSize+int(dataSize))
	copy(data, header)
	if _, err := io.ReadFull(s.r, data[HeaderSize:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(ErrShortRecord, "body at offset %d", s.offset)
		}
		return nil, err
	}

	rec, err := s.codec.Decode(data)
	if err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, errors.Wrapf(err, "record at offset %d", s.offset)
	}
	s.offset += int64(len(data))
	return rec, nil
}

// Offset returns the stream position after the last record read.
func (s *StreamReader) Offset() int64 {
	return s.offset
}
