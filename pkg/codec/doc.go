// Package codec provides the byte-level formats used by CabinetDB.
//
// It covers the binary record format shared by the log-structured hash
// backend and snapshot files, the 64.64 fixed-point decimal used by
// floating increments, value compressors selectable per database, and
// named charsets for string-keyed access.
//
// # Records
//
// A record is a 21 byte little-endian header followed by the key and value:
//
//	[CRC32(4)][KeySize(4)][ValueSize(4)][Timestamp(8)][Flags(1)][Key][Value]
//
// Timestamp is Unix nanoseconds. Bit 0 of Flags marks a tombstone, which
// the hash backend writes on removal and skips on replay. The checksum
// covers every byte after the CRC32 field.
//
// A log or snapshot is a plain concatenation of records. StreamReader walks
// one and tracks the offset past the last good record, so a backend can
// truncate a torn tail:
//
//	r := codec.NewStreamReader(f, 0)
//	for {
//	    rec, err := r.Next()
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    if err != nil {
//	        return r.Offset(), err // corrupt from here onwards
//	    }
//	    apply(rec)
//	}
//
// Decode wraps ErrShortRecord and Validate wraps ErrChecksum, so a truncated
// tail and a corrupted record can be told apart with errors.Is.
//
// # Fixed-Point Decimals
//
// FloatToDecimal and DecimalToFloat convert between float64 and a 16-byte
// big-endian pair: the signed integer part, then the signed fraction scaled
// by 10^15. The fraction is truncated, so only about 15 fractional digits
// survive a round trip.
//
// # Compression and Charsets
//
// CompressorByName resolves the zcomp descriptor values. LookupText accepts
// IANA and WHATWG names; ISO-8859-1 resolves to windows-1252 as browsers do.
//
// RecordCodec, compressors and Text values are safe for concurrent use.
package codec
