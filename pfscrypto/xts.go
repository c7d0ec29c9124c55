package pfscrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
)

// XTS implements XTS-AES-128 sector encryption as specified by IEEE Std
// 1619-2007. The tweak for a sector is the AES-encrypted little-endian
// sector index; successive 16-byte blocks within the same sector each
// multiply the tweak by alpha in GF(2^128).
//
// This is a from-scratch implementation on top of crypto/aes rather than a
// third-party XTS package: no repository in the retrieval pack imports one.
// It was grounded on the shape of a hand-rolled AES-XTS helper found in the
// pack (split 32-byte key into data/tweak halves, per-block tweak update),
// but that helper derived the tweak fresh per call and shifted the tweak
// bytes in the wrong direction for a little-endian tweak representation;
// both are fixed here so multi-block sectors tweak correctly across block
// boundaries.
type XTS struct {
	dataCipher  cipher.Block
	tweakCipher cipher.Block
}

// NewXTS builds an XTS cipher from a 16-byte data key and a 16-byte tweak
// key (the two halves of a PfsGenEncKey result).
func NewXTS(dataKey, tweakKey []byte) (*XTS, error) {
	if len(dataKey) != 16 || len(tweakKey) != 16 {
		return nil, fmt.Errorf("pfscrypto: XTS-AES-128 requires two 16-byte keys, got %d and %d", len(dataKey), len(tweakKey))
	}

	dc, err := aes.NewCipher(dataKey)
	if err != nil {
		return nil, fmt.Errorf("pfscrypto: data cipher: %w", err)
	}

	tc, err := aes.NewCipher(tweakKey)
	if err != nil {
		return nil, fmt.Errorf("pfscrypto: tweak cipher: %w", err)
	}

	return &XTS{dataCipher: dc, tweakCipher: tc}, nil
}

func (x *XTS) sectorTweak(sector uint64) [aes.BlockSize]byte {
	var t [aes.BlockSize]byte
	binary.LittleEndian.PutUint64(t[:8], sector)
	x.tweakCipher.Encrypt(t[:], t[:])
	return t
}

// gfDouble multiplies the little-endian 128-bit value in t by alpha (x) in
// GF(2^128) with the IEEE 1619 reduction polynomial x^128+x^7+x^2+x+1.
func gfDouble(t *[aes.BlockSize]byte) {
	var carry byte
	for i := 0; i < aes.BlockSize; i++ {
		next := t[i] >> 7
		t[i] = (t[i] << 1) | carry
		carry = next
	}
	if carry != 0 {
		t[0] ^= 0x87
	}
}

// EncryptSector XTS-encrypts buf in place. buf's length must be a multiple
// of the AES block size (16); sector is the absolute tweak value, which
// for PFS is the 4096-byte sector's index from the start of the image.
func (x *XTS) EncryptSector(buf []byte, sector uint64) error {
	return x.crypt(buf, sector, x.dataCipher.Encrypt)
}

// DecryptSector reverses EncryptSector.
func (x *XTS) DecryptSector(buf []byte, sector uint64) error {
	return x.crypt(buf, sector, x.dataCipher.Decrypt)
}

func (x *XTS) crypt(buf []byte, sector uint64, blockOp func(dst, src []byte)) error {
	if len(buf)%aes.BlockSize != 0 {
		return fmt.Errorf("pfscrypto: sector length %d is not a multiple of the AES block size", len(buf))
	}

	tweak := x.sectorTweak(sector)
	var block [aes.BlockSize]byte

	for off := 0; off < len(buf); off += aes.BlockSize {
		chunk := buf[off : off+aes.BlockSize]
		for i := range block {
			block[i] = chunk[i] ^ tweak[i]
		}
		blockOp(block[:], block[:])
		for i := range block {
			chunk[i] = block[i] ^ tweak[i]
		}
		gfDouble(&tweak)
	}

	return nil
}
