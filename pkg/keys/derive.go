// Package keys turns user supplied key material into the AES key used by
// the decoder.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/i5heu/wacrypt/pkg/container"
	"github.com/i5heu/wacrypt/pkg/decrypterr"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length produced by Derive.
const KeySize = 32

// backupLabel is the expand label; HKDF appends the 0x01 block counter.
const backupLabel = "backup encryption"

// Stream is the flat key material extracted from a key file or export.
type Stream []byte

// Derived is the AES key for one decryption call. Stream is kept only so it
// can be shown to the operator.
type Derived struct {
	Key    [KeySize]byte
	Stream Stream
}

// Derive computes HMAC-SHA256(HMAC-SHA256(0^32, stream),
// "backup encryption" || 0x01), which is HKDF-SHA256 with a zero salt and
// a single expand block.
func Derive(stream Stream) (Derived, error) {
	prk := hkdf.Extract(sha256.New, stream, make([]byte, sha256.Size))

	var d Derived
	r := hkdf.Expand(sha256.New, prk, []byte(backupLabel))
	if _, err := io.ReadFull(r, d.Key[:]); err != nil {
		return Derived{}, fmt.Errorf("keys: expand: %w", err)
	}
	d.Stream = stream
	return d, nil
}

// LegacyKey returns the raw AES key stored in a crypt12/crypt14 key file.
// No hashing is involved.
func LegacyKey(stream Stream) ([]byte, error) {
	if len(stream) != container.KeyFileLength {
		return nil, decrypterr.New(decrypterr.KindInvalidKey,
			"the key file must be %d bytes, got %d", container.KeyFileLength, len(stream))
	}
	return stream[container.LegacyKeyOffset:], nil
}

// RenderHex formats stream as lowercase hex in space separated groups of
// four characters.
func RenderHex(stream Stream) string {
	h := hex.EncodeToString(stream)

	var b strings.Builder
	b.Grow(len(h) + len(h)/4)
	for i := 0; i < len(h); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(h[i:min(i+4, len(h))])
	}
	return b.String()
}

// ParseHex parses a hex key as printed by RenderHex; spaces are ignored.
func ParseHex(s string) (Stream, error) {
	clean := strings.Join(strings.Fields(s), "")
	if clean == "" {
		return nil, decrypterr.New(decrypterr.KindInvalidKey, "empty hex key")
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, decrypterr.Wrap(decrypterr.KindInvalidKey, err, "malformed hex key")
	}
	return Stream(b), nil
}
