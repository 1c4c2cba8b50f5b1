package keys

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Java object serialization stream constants (java.io.ObjectStreamConstants).
const (
	streamMagic   = 0xACED
	streamVersion = 5

	tcNull         = 0x70
	tcReference    = 0x71
	tcClassDesc    = 0x72
	tcArray        = 0x75
	tcBlockData    = 0x77
	tcEndBlockData = 0x78

	byteArrayClass = "[B"
)

// JavaByteArrayDecoder reads the single shape the key export tool writes:
// a stream whose top-level object is a byte[]. It is not a general Java
// deserializer.
type JavaByteArrayDecoder struct{}

var _ BlobDecoder = JavaByteArrayDecoder{}

func (JavaByteArrayDecoder) DecodeSignedBytes(blob []byte) ([]int8, error) {
	r := bytes.NewReader(blob)

	var hdr struct {
		Magic   uint16
		Version uint16
	}
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("javaobj: header: %w", err)
	}
	if hdr.Magic != streamMagic || hdr.Version != streamVersion {
		return nil, fmt.Errorf("javaobj: not a serialization stream (magic %#x version %d)", hdr.Magic, hdr.Version)
	}

	tc, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("javaobj: object tag: %w", err)
	}
	if tc != tcArray {
		return nil, fmt.Errorf("javaobj: top-level object is %#x, want array", tc)
	}
	if err := readClassDesc(r); err != nil {
		return nil, err
	}

	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("javaobj: array length: %w", err)
	}
	if n < 0 || int64(n) > int64(r.Len()) {
		return nil, fmt.Errorf("javaobj: array length %d exceeds stream", n)
	}

	values := make([]int8, n)
	if err := binary.Read(r, binary.BigEndian, values); err != nil {
		return nil, fmt.Errorf("javaobj: array body: %w", err)
	}
	return values, nil
}

func readClassDesc(r *bytes.Reader) error {
	tc, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("javaobj: class descriptor: %w", err)
	}
	switch tc {
	case tcReference:
		_, err := io.CopyN(io.Discard, r, 4)
		if err != nil {
			return fmt.Errorf("javaobj: class reference: %w", err)
		}
		return nil
	case tcClassDesc:
	default:
		return fmt.Errorf("javaobj: unexpected class descriptor tag %#x", tc)
	}

	var nameLen uint16
	if err := binary.Read(r, binary.BigEndian, &nameLen); err != nil {
		return fmt.Errorf("javaobj: class name: %w", err)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return fmt.Errorf("javaobj: class name: %w", err)
	}
	if string(name) != byteArrayClass {
		return fmt.Errorf("javaobj: array class is %q, want %q", name, byteArrayClass)
	}

	// serialVersionUID (8), flags (1), field count (2)
	var desc struct {
		UID    int64
		Flags  uint8
		Fields uint16
	}
	if err := binary.Read(r, binary.BigEndian, &desc); err != nil {
		return fmt.Errorf("javaobj: class descriptor body: %w", err)
	}
	if desc.Fields != 0 {
		return fmt.Errorf("javaobj: primitive array declares %d fields", desc.Fields)
	}

	if err := skipAnnotation(r); err != nil {
		return err
	}

	tc, err = r.ReadByte()
	if err != nil {
		return fmt.Errorf("javaobj: super class: %w", err)
	}
	if tc != tcNull {
		return fmt.Errorf("javaobj: unexpected super class tag %#x", tc)
	}
	return nil
}

// skipAnnotation consumes optional block data up to TC_ENDBLOCKDATA.
func skipAnnotation(r *bytes.Reader) error {
	for {
		tc, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("javaobj: class annotation: %w", err)
		}
		switch tc {
		case tcEndBlockData:
			return nil
		case tcBlockData:
			n, err := r.ReadByte()
			if err != nil {
				return fmt.Errorf("javaobj: block data: %w", err)
			}
			if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
				return fmt.Errorf("javaobj: block data: %w", err)
			}
		default:
			return fmt.Errorf("javaobj: unsupported annotation tag %#x", tc)
		}
	}
}
