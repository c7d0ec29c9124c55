package pfscrypto

import (
	"bytes"
	"crypto/aes"
	"testing"
)

func testXTS(t *testing.T) *XTS {
	dataKey := bytes.Repeat([]byte{0x11}, 16)
	tweakKey := bytes.Repeat([]byte{0x22}, 16)
	x, err := NewXTS(dataKey, tweakKey)
	if err != nil {
		t.Fatalf("NewXTS: %v", err)
	}
	return x
}

func TestXTSRoundTrip(t *testing.T) {
	x := testXTS(t)

	plain := make([]byte, 4096)
	for i := range plain {
		plain[i] = byte(i)
	}

	buf := append([]byte(nil), plain...)
	if err := x.EncryptSector(buf, 42); err != nil {
		t.Fatalf("EncryptSector: %v", err)
	}

	if bytes.Equal(buf, plain) {
		t.Fatal("ciphertext equals plaintext")
	}

	if err := x.DecryptSector(buf, 42); err != nil {
		t.Fatalf("DecryptSector: %v", err)
	}

	if !bytes.Equal(buf, plain) {
		t.Fatal("decrypted sector does not match original plaintext")
	}
}

func TestXTSBlocksDifferAcrossSector(t *testing.T) {
	x := testXTS(t)

	plain := make([]byte, 64) // four identical AES blocks
	buf := append([]byte(nil), plain...)

	if err := x.EncryptSector(buf, 0); err != nil {
		t.Fatalf("EncryptSector: %v", err)
	}

	blocks := make(map[string]bool)
	for off := 0; off < len(buf); off += aes.BlockSize {
		blocks[string(buf[off:off+aes.BlockSize])] = true
	}

	if len(blocks) != 4 {
		t.Fatalf("expected 4 distinct ciphertext blocks from identical plaintext blocks, got %d", len(blocks))
	}
}

func TestXTSSectorIndexChangesCiphertext(t *testing.T) {
	x := testXTS(t)

	plain := make([]byte, 16)
	a := append([]byte(nil), plain...)
	b := append([]byte(nil), plain...)

	if err := x.EncryptSector(a, 0); err != nil {
		t.Fatal(err)
	}
	if err := x.EncryptSector(b, 1); err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(a, b) {
		t.Fatal("expected different ciphertext for different sector indices")
	}
}

func TestXTSRejectsBadLength(t *testing.T) {
	x := testXTS(t)
	if err := x.EncryptSector(make([]byte, 10), 0); err == nil {
		t.Fatal("expected error for non-block-aligned buffer")
	}
}
