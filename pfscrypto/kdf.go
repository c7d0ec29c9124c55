// Package pfscrypto implements the keyed primitives a PFS image build
// needs: the sign/encryption key derivation functions and the XTS-AES-128
// sector cipher. Nothing here is PFS-format-aware — callers in package pfs
// decide what gets signed or encrypted and with which derived key.
package pfscrypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// KeySize is the length in bytes of both derived keys.
const KeySize = sha256.Size // 32

// PfsGenSignKey derives the HMAC-SHA256 signing key from EKPFS and the
// image seed. The result is used directly as the HMAC key for every
// signing-queue entry.
func PfsGenSignKey(ekpfs, seed []byte) []byte {
	return derive(ekpfs, seed, "sign")
}

// PfsGenEncKey derives the XTS-AES-128 key material from EKPFS and the
// image seed. The returned 32 bytes split into a tweak key (first 16) and
// a data key (last 16), per the XTS key-splitting convention.
func PfsGenEncKey(ekpfs, seed []byte) []byte {
	return derive(ekpfs, seed, "enc")
}

func derive(ekpfs, seed []byte, label string) []byte {
	mac := hmac.New(sha256.New, ekpfs)
	mac.Write([]byte(label))
	mac.Write(seed)
	return mac.Sum(nil)
}

// SignBlock computes the HMAC-SHA256 tag for a single signing-queue entry's
// payload under signKey. The caller is responsible for writing the
// returned tag and the little-endian block index immediately after it, per
// the on-disk signature-slot layout.
func SignBlock(signKey, payload []byte) [sha256.Size]byte {
	mac := hmac.New(sha256.New, signKey)
	mac.Write(payload)
	var tag [sha256.Size]byte
	copy(tag[:], mac.Sum(nil))
	return tag
}
