package codec

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// DecimalSize is the encoded size of a fixed-point decimal.
const DecimalSize = 16

// decimalScale scales the fractional part; 15 digits survive a round trip.
const decimalScale = 1e15

// ErrDecimalSize is returned when a buffer is not exactly DecimalSize bytes.
var ErrDecimalSize = errors.New("codec: fixed-point decimal must be 16 bytes")

// DecimalToFloat decodes a 64.64 fixed-point value: a big-endian signed integer
// part followed by a big-endian signed fraction scaled by 10^15.
func DecimalToFloat(b []byte) (float64, error) {
	if len(b) != DecimalSize {
		return 0, errors.Wrapf(ErrDecimalSize, "got %d", len(b))
	}
	integ := int64(binary.BigEndian.Uint64(b[0:8]))
	frac := int64(binary.BigEndian.Uint64(b[8:16]))
	return float64(integ) + float64(frac)/decimalScale, nil
}

// FloatToDecimal encodes v as a 64.64 fixed-point value. The fraction is
// truncated, not rounded.
func FloatToDecimal(v float64) []byte {
	frac := math.Mod(v, 1)
	integ := int64(v - frac)
	scaled := int64(frac * decimalScale)

	b := make([]byte, DecimalSize)
	binary.BigEndian.PutUint64(b[0:8], uint64(integ))
	binary.BigEndian.PutUint64(b[8:16], uint64(scaled))
	return b
}

// Int64ToBytes encodes n as 8 big-endian bytes, the integer counter format.
func Int64ToBytes(n int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}

// BytesToInt64 decodes an 8-byte big-endian counter.
func BytesToInt64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, errors.Newf("codec: integer counter must be 8 bytes, got %d", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}
