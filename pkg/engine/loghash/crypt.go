package loghash

import (
	"crypto/cipher"
	"crypto/rand"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/ssargent/cabinetdb/pkg/codec"
)

// valueCodec transforms values on their way to and from the log: compress
// first, then encrypt.
type valueCodec struct {
	comp codec.Compressor
	aead cipher.AEAD
}

func newValueCodec(zcomp, zkey string) (*valueCodec, error) {
	vc := &valueCodec{}
	if zcomp != "" {
		c, err := codec.CompressorByName(zcomp)
		if err != nil {
			return nil, err
		}
		vc.comp = c
	}
	if zkey != "" {
		key := blake2b.Sum256([]byte(zkey))
		aead, err := chacha20poly1305.NewX(key[:])
		if err != nil {
			return nil, errors.Wrap(err, "cipher")
		}
		vc.aead = aead
	}
	return vc, nil
}

func (vc *valueCodec) identity() bool {
	return vc.comp == nil && vc.aead == nil
}

func (vc *valueCodec) encode(value []byte) ([]byte, error) {
	out := value
	if vc.comp != nil {
		c, err := vc.comp.Compress(out)
		if err != nil {
			return nil, err
		}
		out = c
	}
	if vc.aead != nil {
		nonce := make([]byte, vc.aead.NonceSize(), vc.aead.NonceSize()+len(out)+vc.aead.Overhead())
		if _, err := rand.Read(nonce); err != nil {
			return nil, errors.Wrap(err, "nonce")
		}
		out = vc.aead.Seal(nonce, nonce, out, nil)
	}
	return out, nil
}

func (vc *valueCodec) decode(stored []byte) ([]byte, error) {
	out := stored
	if vc.aead != nil {
		ns := vc.aead.NonceSize()
		if len(out) < ns {
			return nil, errors.Wrap(ErrCorruption, "sealed value too short")
		}
		plain, err := vc.aead.Open(nil, out[:ns], out[ns:], nil)
		if err != nil {
			return nil, errors.Wrap(ErrCorruption, "cannot open sealed value")
		}
		out = plain
	}
	if vc.comp != nil {
		d, err := vc.comp.Decompress(out)
		if err != nil {
			return nil, errors.Wrap(ErrCorruption, err.Error())
		}
		out = d
	}
	return out, nil
}
