// Package decoder turns one (key, IV, ciphertext) hypothesis into a
// validated SQLite database or a rejection.
package decoder

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"

	"github.com/i5heu/wacrypt/pkg/decrypterr"
	"github.com/klauspost/compress/zlib"
)

// Magic is the case-insensitive prefix every decrypted database starts with.
const Magic = "SQLITE"

var (
	// ErrRecoverable marks a rejected hypothesis. Callers move on to the
	// next candidate when errors.Is(err, ErrRecoverable).
	ErrRecoverable = errors.New("decoder: candidate rejected")
	// ErrBadMagic is returned when inflate succeeds but the output is not a
	// SQLite database.
	ErrBadMagic = errors.New("decoder: plaintext is not a SQLite database")
	// ErrEmptyIV rejects zero-length IV slices produced by out-of-range
	// candidates.
	ErrEmptyIV = errors.New("decoder: empty IV")
)

// Decoder decrypts and inflates candidate slices. A Decoder is safe for
// concurrent use.
type Decoder struct {
	observe func()
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithObserver registers fn to be called once per cipher attempt.
func WithObserver(fn func()) Option {
	return func(d *Decoder) { d.observe = fn }
}

// New constructs a Decoder.
func New(opts ...Option) *Decoder {
	d := &Decoder{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Probe checks that the AES backend can be constructed.
func Probe() error {
	if _, err := aes.NewCipher(make([]byte, 32)); err != nil {
		return decrypterr.Wrap(decrypterr.KindDependencyUnavailable, err, "aes backend")
	}
	return nil
}

// IsRecoverable reports whether err only rejects the current candidate.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// Decode decrypts ciphertext with key and iv, inflates it and checks the
// SQLite magic. Inflate and magic failures are recoverable; an unusable
// key is not.
//
// Decryption is streamed into the inflater so a wrong hypothesis is
// usually rejected after a few blocks.
func (d *Decoder) Decode(key, iv, ciphertext []byte) ([]byte, error) {
	if d.observe != nil {
		d.observe()
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, decrypterr.Wrap(decrypterr.KindInvalidKey, err, "aes key")
	}
	if len(iv) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrRecoverable, ErrEmptyIV)
	}

	plain := cipher.StreamReader{S: newGCMStream(block, iv), R: bytes.NewReader(ciphertext)}
	zr, err := zlib.NewReader(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: inflate: %w", ErrRecoverable, err)
	}
	defer zr.Close()

	head := make([]byte, len(Magic))
	if _, err := io.ReadFull(zr, head); err != nil {
		return nil, fmt.Errorf("%w: inflate: %w", ErrRecoverable, err)
	}
	if !hasMagic(head) {
		return nil, fmt.Errorf("%w: %w", ErrRecoverable, ErrBadMagic)
	}

	var out bytes.Buffer
	out.Grow(len(ciphertext) * 2)
	out.Write(head)
	if _, err := io.Copy(&out, zr); err != nil {
		return nil, fmt.Errorf("%w: inflate: %w", ErrRecoverable, err)
	}
	return out.Bytes(), nil
}

// hasMagic compares ASCII case-insensitively; non-ASCII bytes never match.
func hasMagic(head []byte) bool {
	if len(head) < len(Magic) {
		return false
	}
	for i := 0; i < len(Magic); i++ {
		c := head[i]
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c != Magic[i] {
			return false
		}
	}
	return true
}
