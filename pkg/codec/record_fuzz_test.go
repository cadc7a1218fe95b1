//go:build fuzz
// +build fuzz

package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fuzzMaxField = 1 << 14

func FuzzRecordCodec_Flags(f *testing.F) {
	f.Add([]byte("k"), []byte("v"), byte(FlagNone), uint64(0))
	f.Add([]byte("gone"), []byte(""), byte(FlagTombstone), uint64(1700000000000000000))
	f.Add([]byte{0x00}, []byte{0xFF}, byte(0xFE), ^uint64(0))

	c := NewRecordCodec()
	f.Fuzz(func(t *testing.T, key, value []byte, flags byte, ts uint64) {
		if len(key) > fuzzMaxField || len(value) > fuzzMaxField {
			t.Skip()
		}
		b, err := c.EncodeRecord(&Record{Key: key, Value: value, Flags: flags, Timestamp: ts})
		require.NoError(t, err)
		require.Equal(t, flags, b[20])

		rec, err := c.Decode(b)
		require.NoError(t, err)
		require.NoError(t, rec.Validate())
		assert.Equal(t, flags, rec.Flags)
		assert.Equal(t, ts, rec.Timestamp)
		assert.Equal(t, flags&FlagTombstone != 0, rec.IsTombstone())

		// Every flag bit is covered by the checksum.
		for bit := 0; bit < 8; bit++ {
			b[20] ^= 1 << bit
			bad, err := c.Decode(b)
			require.NoError(t, err)
			assert.ErrorIs(t, bad.Validate(), ErrChecksum, "flag bit %d", bit)
			b[20] ^= 1 << bit
		}
	})
}

func FuzzRecordCodec_Tombstone(f *testing.F) {
	f.Add([]byte("gone"), uint(0))
	f.Add([]byte(""), uint(20))
	f.Add([]byte{0x00, 0x01}, uint(21))

	c := NewRecordCodec()
	f.Fuzz(func(t *testing.T, key []byte, pos uint) {
		if len(key) > fuzzMaxField {
			t.Skip()
		}
		b, err := c.EncodeTombstone(key)
		require.NoError(t, err)
		require.Len(t, b, HeaderSize+len(key))

		rec, err := c.Decode(b)
		require.NoError(t, err)
		require.NoError(t, rec.Validate())
		assert.True(t, rec.IsTombstone())
		assert.Zero(t, rec.ValueSize)
		assert.Equal(t, key, rec.Key)

		// A flipped byte either shortens the record or breaks its checksum.
		i := int(pos % uint(len(b)))
		b[i] ^= 0xFF
		rec, err = c.Decode(b)
		if err != nil {
			assert.ErrorIs(t, err, ErrShortRecord)
			return
		}
		assert.ErrorIs(t, rec.Validate(), ErrChecksum, "byte %d", i)
	})
}

// fuzzStream encodes a live record, a tombstone and a second live record,
// returning the stream and the offset at which each record ends.
func fuzzStream(t *testing.T, a, b []byte) ([]byte, []int) {
	t.Helper()
	c := NewRecordCodec()
	var (
		buf  bytes.Buffer
		ends []int
	)
	for _, enc := range []func() ([]byte, error){
		func() ([]byte, error) { return c.Encode(a, b) },
		func() ([]byte, error) { return c.EncodeTombstone(a) },
		func() ([]byte, error) { return c.Encode(b, a) },
	} {
		rec, err := enc()
		require.NoError(t, err)
		buf.Write(rec)
		ends = append(ends, buf.Len())
	}
	return buf.Bytes(), ends
}

func FuzzStreamReader_Truncation(f *testing.F) {
	f.Add([]byte("a"), []byte("1"), uint(0))
	f.Add([]byte("key"), []byte("value"), uint(26))
	f.Add([]byte(""), []byte(""), uint(63))

	f.Fuzz(func(t *testing.T, a, b []byte, cut uint) {
		if len(a) > fuzzMaxField || len(b) > fuzzMaxField {
			t.Skip()
		}
		data, ends := fuzzStream(t, a, b)
		n := int(cut % uint(len(data)+1))
		s := NewStreamReader(bytes.NewReader(data[:n]), 0)

		var read int
		for {
			rec, err := s.Next()
			if err != nil {
				if read < len(ends) && n > boundary(ends, read) {
					assert.ErrorIs(t, err, ErrShortRecord)
				} else {
					assert.Equal(t, io.EOF, err)
				}
				break
			}
			assert.Equal(t, read == 1, rec.IsTombstone())
			read++
		}
		assert.Equal(t, int64(boundary(ends, read)), s.Offset(), "offset stops after the last whole record")
		assert.LessOrEqual(t, boundary(ends, read), n)
	})
}

func FuzzStreamReader_Corruption(f *testing.F) {
	f.Add([]byte("a"), []byte("1"), uint(0))
	f.Add([]byte("key"), []byte("value"), uint(40))
	f.Add([]byte("k"), []byte(""), uint(20))

	f.Fuzz(func(t *testing.T, a, b []byte, pos uint) {
		if len(a) > fuzzMaxField || len(b) > fuzzMaxField {
			t.Skip()
		}
		data, ends := fuzzStream(t, a, b)
		i := int(pos % uint(len(data)))
		victim := 0
		for i >= ends[victim] {
			victim++
		}
		// Size fields move the frame rather than the payload.
		if at := i - boundary(ends, victim); at >= 4 && at < 12 {
			t.Skip()
		}
		data[i] ^= 0xFF

		s := NewStreamReader(bytes.NewReader(data), 0)
		for n := 0; n < victim; n++ {
			_, err := s.Next()
			require.NoError(t, err)
		}
		_, err := s.Next()
		assert.True(t, errors.Is(err, ErrChecksum), "byte %d: %v", i, err)
		assert.Equal(t, int64(boundary(ends, victim)), s.Offset())
	})
}

// boundary is the offset at which record n starts.
func boundary(ends []int, n int) int {
	if n == 0 {
		return 0
	}
	return ends[n-1]
}
