package container

import (
	"crypto/subtle"

	"github.com/i5heu/wacrypt/pkg/decrypterr"
)

const signatureLength = 32

// keySignature is the key-file window compared against the container.
var keySignature = [2]int{30, 30 + signatureLength}

// signatureWindow returns the container window holding the key signature.
func signatureWindow(f Format) (start int, ok bool) {
	switch f {
	case LegacyA:
		return 3, true
	case LegacyB:
		return 15, true
	}
	return 0, false
}

// ValidateSignature fails fast when a legacy key file does not belong to
// the container. It is a no-op for Current.
func ValidateSignature(f Format, key, raw []byte) error {
	start, ok := signatureWindow(f)
	if !ok {
		return nil
	}
	if len(key) < keySignature[1] {
		return decrypterr.New(decrypterr.KindInvalidKey, "%s key too short for signature", f)
	}
	if len(raw) < start+signatureLength {
		return decrypterr.New(decrypterr.KindInvalidFormat, "%s container too short for signature", f)
	}

	want := key[keySignature[0]:keySignature[1]]
	got := raw[start : start+signatureLength]
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return decrypterr.New(decrypterr.KindSignatureMismatch,
			"the signature of key file and %s backup mismatch", f)
	}
	return nil
}
