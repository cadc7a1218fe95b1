package loghash

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/cabinetdb/pkg/codec"
)

// LogReader provides random access to records in a log file
type LogReader struct {
	file  *os.File
	codec *codec.RecordCodec
	path  string
}

// NewLogReader opens the data file for positional reads.
func NewLogReader(path string) (*LogReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &LogReader{file: file, codec: codec.NewRecordCodec(), path: path}, nil
}

// ReadAt reads and validates the record starting at offset. It is safe for
// concurrent use.
func (r *LogReader) ReadAt(offset int64) (*codec.Record, error) {
	header := make([]byte, codec.HeaderSize)
	if _, err := r.file.ReadAt(header, offset); err != nil {
		if err == io.EOF {
			return nil, errors.Wrapf(ErrCorruption, "short header at offset %d", offset)
		}
		return nil, err
	}

	hdr, err := r.codec.DecodeHeader(header)
	if err != nil {
		return nil, err
	}

	data := make([]byte, codec.HeaderSize+int(hdr.KeySize)+int(hdr.ValueSize))
	copy(data, header)
	if _, err := r.file.ReadAt(data[codec.HeaderSize:], offset+codec.HeaderSize); err != nil {
		if err == io.EOF {
			return nil, errors.Wrapf(ErrCorruption, "short record at offset %d", offset)
		}
		return nil, err
	}

	record, err := r.codec.Decode(data)
	if err != nil {
		return nil, err
	}
	if err := record.Validate(); err != nil {
		return nil, errors.Wrapf(ErrCorruption, "offset %d: %v", offset, err)
	}
	return record, nil
}

// Close closes the log reader
func (r *LogReader) Close() error {
	return r.file.Close()
}
