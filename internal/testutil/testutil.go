// Package testutil builds synthetic encrypted backups for tests.
package testutil

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"flag"
	"testing"

	"github.com/klauspost/compress/zlib"
)

var RunLong = flag.Bool("long", false, "run long/heavy tests")

func RequireLong(t *testing.T) {
	t.Helper()
	if !*RunLong {
		t.Skip("skipping long test (use -long to enable)")
	}
}

// TB is the subset of testing.TB the builders need; *rapid.T satisfies it
// too.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// SQLite returns a fake database: the real 16-byte SQLite header followed
// by body.
func SQLite(body string) []byte {
	return append([]byte("SQLite format 3\x00"), body...)
}

// Deflate zlib-compresses data.
func Deflate(t TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

// Seal encrypts plaintext with AES-GCM under an IV of any length and
// returns ciphertext || tag, the layout the backups use.
func Seal(t TB, key, iv, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes: %v", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		t.Fatalf("gcm: %v", err)
	}
	return aead.Seal(nil, iv, plaintext, nil)
}

// Fill returns n bytes of a repeating non-zero pattern seeded by seed.
func Fill(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

// LegacyKeyFile returns a 158-byte crypt12/crypt14 key file holding sig at
// [30:62] and key at [126:158].
func LegacyKeyFile(sig, key []byte) []byte {
	file := make([]byte, 158)
	copy(file[30:62], sig)
	copy(file[126:], key)
	return file
}

// LegacyA lays out a crypt12 container: signature at [3:35], IV at
// [51:67], ciphertext from 67 and a 20-byte footer.
func LegacyA(t TB, sig, key, iv, plaintext []byte) []byte {
	t.Helper()
	sealed := Seal(t, key, iv, Deflate(t, plaintext))
	// The GCM tag is part of the footer, so only the ciphertext precedes it.
	ct := sealed[:len(sealed)-16]

	raw := make([]byte, 67, 67+len(ct)+20)
	copy(raw[3:35], sig)
	copy(raw[51:67], iv)
	raw = append(raw, ct...)
	raw = append(raw, sealed[len(sealed)-16:]...)
	return append(raw, 0, 0, 0, 0)
}

// LegacyB lays out a crypt14 container with the IV at ivStart and the
// ciphertext at dbStart, padded with trailing bytes up to minLen.
func LegacyB(t TB, sig, key []byte, ivStart, dbStart int, plaintext []byte, minLen int) []byte {
	t.Helper()
	if ivStart+16 > dbStart || ivStart < 47 {
		t.Fatalf("iv [%d:%d] overlaps signature or ciphertext at %d", ivStart, ivStart+16, dbStart)
	}
	iv := Fill(16, byte(ivStart))
	sealed := Seal(t, key, iv, Deflate(t, plaintext))

	raw := Fill(dbStart, 0x31)
	copy(raw[15:47], sig)
	copy(raw[ivStart:], iv)
	raw = append(raw, sealed...)
	if len(raw) < minLen {
		raw = append(raw, Fill(minLen-len(raw), 0x77)...)
	}
	return raw
}

// Current lays out a crypt15 container. header is the length byte at
// offset 0; the IV sits at [8:24] for message backups and [7:23] for
// contact backups.
func Current(t TB, key []byte, contact bool, header byte, plaintext []byte) []byte {
	t.Helper()
	ivStart, dbStart := 8, int(header)+2
	if contact {
		ivStart, dbStart = 7, int(header)+1
	}
	if dbStart < ivStart+16 {
		t.Fatalf("header %d puts ciphertext inside the IV", header)
	}

	iv := Fill(16, 0xC3)
	sealed := Seal(t, key, iv, Deflate(t, plaintext))

	raw := Fill(dbStart, 0x05)
	raw[0] = header
	copy(raw[ivStart:], iv)
	raw = append(raw, sealed...)
	if len(raw) < 131 {
		raw = append(raw, Fill(131-len(raw), 0x09)...)
	}
	return raw
}
