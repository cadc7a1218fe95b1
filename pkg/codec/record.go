package codec

import (
	"encoding/binary"
	"hash/crc32"
	"time"

	"github.com/cockroachdb/errors"
)

// HeaderSize is the fixed size of an encoded record header.
const HeaderSize = 21

// Record flags
const (
	FlagNone      byte = 0
	FlagTombstone byte = 1 << 0
)

var (
	// ErrShortRecord is returned when data is too short for the header or the declared sizes.
	ErrShortRecord = errors.New("codec: record data too short")
	// ErrChecksum is returned when a record fails CRC validation.
	ErrChecksum = errors.New("codec: CRC32 mismatch")
)

// Record represents a key-value record with metadata for storage
type Record struct {
	CRC32     uint32 // CRC32 checksum for integrity
	KeySize   uint32 // Size of the key in bytes
	ValueSize uint32 // Size of the value in bytes
	Timestamp uint64 // Unix timestamp in nanoseconds
	Flags     byte   // Record flags (tombstone)
	Key       []byte // Key data
	Value     []byte // Value data
}

// RecordCodec handles serialization and deserialization of records
type RecordCodec struct{}

// NewRecordCodec creates a new record codec instance
func NewRecordCodec() *RecordCodec {
	return &RecordCodec{}
}

// Encode serializes a key-value pair into a binary record format
// Format: [CRC32(4)][KeySize(4)][ValueSize(4)][Timestamp(8)][Flags(1)][Key][Value]
func (c *RecordCodec) Encode(key, value []byte) ([]byte, error) {
	return c.EncodeRecord(NewRecord(key, value))
}

// EncodeTombstone serializes a deletion marker for key.
func (c *RecordCodec) EncodeTombstone(key []byte) ([]byte, error) {
	r := NewRecord(key, nil)
	r.Flags = FlagTombstone
	return c.EncodeRecord(r)
}

// EncodeRecord serializes r, computing its checksum.
func (c *RecordCodec) EncodeRecord(r *Record) ([]byte, error) {
	if len(r.Key) > int(^uint32(0)) || len(r.Value) > int(^uint32(0)) {
		return nil, errors.Newf("codec: record too large (key %d, value %d)", len(r.Key), len(r.Value))
	}
	r.KeySize = uint32(len(r.Key))
	r.ValueSize = uint32(len(r.Value))
	r.CRC32 = r.calculateCRC32()

	buf := make([]byte, r.Size())

	binary.LittleEndian.PutUint32(buf[0:], r.CRC32)
	binary.LittleEndian.PutUint32(buf[4:], r.KeySize)
	binary.LittleEndian.PutUint32(buf[8:], r.ValueSize)
	binary.LittleEndian.PutUint64(buf[12:], r.Timestamp)
	buf[20] = r.Flags
	copy(buf[HeaderSize:], r.Key)
	copy(buf[HeaderSize+int(r.KeySize):], r.Value)

	return buf, nil
}

// DecodeHeader reads the fixed header and returns the record with Key and Value unset.
func (c *RecordCodec) DecodeHeader(data []byte) (*Record, error) {
	if len(data) < HeaderSize {
		return nil, errors.Wrap(ErrShortRecord, "header")
	}
	return &Record{
		CRC32:     binary.LittleEndian.Uint32(data[0:4]),
		KeySize:   binary.LittleEndian.Uint32(data[4:8]),
		ValueSize: binary.LittleEndian.Uint32(data[8:12]),
		Timestamp: binary.LittleEndian.Uint64(data[12:20]),
		Flags:     data[20],
	}, nil
}

// Decode deserializes a binary record into a Record struct
func (c *RecordCodec) Decode(data []byte) (*Record, error) {
	r, err := c.DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	total := uint64(HeaderSize) + uint64(r.KeySize) + uint64(r.ValueSize)
	if uint64(len(data)) < total {
		return nil, errors.Wrapf(ErrShortRecord, "%d < %d", len(data), total)
	}

	keyEnd := HeaderSize + int(r.KeySize)
	r.Key = data[HeaderSize:keyEnd]
	r.Value = data[keyEnd : keyEnd+int(r.ValueSize)]

	return r, nil
}

// Validate checks the integrity of a record using CRC32
func (r *Record) Validate() error {
	if sum := r.calculateCRC32(); r.CRC32 != sum {
		return errors.Wrapf(ErrChecksum, "%d != %d", r.CRC32, sum)
	}

	return nil
}

// IsTombstone reports whether the record marks a deletion.
func (r *Record) IsTombstone() bool {
	return r.Flags&FlagTombstone != 0
}

// Size returns the total size of the record when encoded
func (r *Record) Size() int {
	return HeaderSize + len(r.Key) + len(r.Value)
}

// NewRecord creates a new record with current timestamp
func NewRecord(key, value []byte) *Record {
	return &Record{
		KeySize:   uint32(len(key)),
		ValueSize: uint32(len(value)),
		Timestamp: uint64(time.Now().UnixNano()),
		Key:       key,
		Value:     value,
	}
}

// calculateCRC32 computes CRC32 checksum for record data (excluding the CRC field itself)
func (r *Record) calculateCRC32() uint32 {
	var hdr [17]byte
	binary.LittleEndian.PutUint32(hdr[0:], r.KeySize)
	binary.LittleEndian.PutUint32(hdr[4:], r.ValueSize)
	binary.LittleEndian.PutUint64(hdr[8:], r.Timestamp)
	hdr[16] = r.Flags

	crc := crc32.NewIEEE()
	_, _ = crc.Write(hdr[:])
	_, _ = crc.Write(r.Key)
	_, _ = crc.Write(r.Value)

	return crc.Sum32()
}
