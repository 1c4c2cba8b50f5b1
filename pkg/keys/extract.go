package keys

import (
	"bytes"
	"errors"
	"io/fs"
	"os"

	"github.com/i5heu/wacrypt/pkg/decrypterr"
)

// BlobDecoder decodes a serialized key export into the signed byte values
// it carries, in order.
type BlobDecoder interface {
	DecodeSignedBytes(blob []byte) ([]int8, error)
}

// serializedMagic opens every Java object serialization stream.
var serializedMagic = []byte{0xAC, 0xED}

// LooksSerialized reports whether raw starts like a serialized key export.
func LooksSerialized(raw []byte) bool {
	return bytes.HasPrefix(raw, serializedMagic)
}

// Extract returns the key stream held in raw. Plain key material is copied
// as is; serialized exports are decoded with dec.
func Extract(raw []byte, serialized bool, dec BlobDecoder) (Stream, error) {
	if !serialized {
		return bytes.Clone(raw), nil
	}
	if dec == nil {
		return nil, decrypterr.New(decrypterr.KindDependencyUnavailable,
			"no decoder for serialized key exports")
	}

	values, err := dec.DecodeSignedBytes(raw)
	if err != nil {
		return nil, decrypterr.Wrap(decrypterr.KindInvalidKey, err, "decode key export")
	}
	if len(values) == 0 {
		return nil, decrypterr.New(decrypterr.KindInvalidKey, "key export holds no bytes")
	}

	stream := make(Stream, len(values))
	for i, v := range values {
		stream[i] = byte(v)
	}
	return stream, nil
}

// Load reads key material from the file at arg. When arg cannot be read
// as a file but is a hex string, the decoded bytes are returned instead.
func Load(arg string) ([]byte, error) {
	raw, err := os.ReadFile(arg)
	if err == nil {
		return raw, nil
	}

	if stream, hexErr := ParseHex(arg); hexErr == nil {
		return stream, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, decrypterr.Wrap(decrypterr.KindInvalidKey, err, "key is neither a file nor hex")
	}
	return nil, decrypterr.Wrap(decrypterr.KindConfig, err, "read key file")
}
