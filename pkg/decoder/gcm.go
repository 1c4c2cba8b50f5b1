package decoder

import (
	"crypto/cipher"
	"encoding/binary"
)

// gcmStream is the GCM counter-mode keystream without tag verification.
// The tag is never located or checked.
type gcmStream struct {
	block   cipher.Block
	counter [16]byte
	ks      [16]byte
	pos     int
}

var _ cipher.Stream = (*gcmStream)(nil)

// newGCMStream starts the keystream at inc32(J0), the first counter block
// GCM uses for ciphertext.
func newGCMStream(block cipher.Block, iv []byte) *gcmStream {
	s := &gcmStream{block: block, pos: 16}
	s.counter = preCounter(block, iv)
	inc32(&s.counter)
	return s
}

func (s *gcmStream) XORKeyStream(dst, src []byte) {
	for i := range src {
		if s.pos == len(s.ks) {
			s.block.Encrypt(s.ks[:], s.counter[:])
			inc32(&s.counter)
			s.pos = 0
		}
		dst[i] = src[i] ^ s.ks[s.pos]
		s.pos++
	}
}

// preCounter computes J0. A 96-bit IV is used directly; any other length
// is hashed as GHASH(IV || pad || 0^64 || len64(IV)).
func preCounter(block cipher.Block, iv []byte) [16]byte {
	var j0 [16]byte
	if len(iv) == 12 {
		copy(j0[:], iv)
		j0[15] = 1
		return j0
	}

	var h [16]byte
	block.Encrypt(h[:], h[:])
	key := fieldElement{binary.BigEndian.Uint64(h[:8]), binary.BigEndian.Uint64(h[8:])}

	var y fieldElement
	for off := 0; off < len(iv); off += 16 {
		var blk [16]byte
		copy(blk[:], iv[off:])
		y = ghashBlock(y, blk, key)
	}
	var lens [16]byte
	binary.BigEndian.PutUint64(lens[8:], uint64(len(iv))*8)
	y = ghashBlock(y, lens, key)

	binary.BigEndian.PutUint64(j0[:8], y.hi)
	binary.BigEndian.PutUint64(j0[8:], y.lo)
	return j0
}

// fieldElement is a GF(2^128) element in GCM bit order: bit 0 is the most
// significant bit of hi.
type fieldElement struct {
	hi, lo uint64
}

func ghashBlock(y fieldElement, blk [16]byte, h fieldElement) fieldElement {
	y.hi ^= binary.BigEndian.Uint64(blk[:8])
	y.lo ^= binary.BigEndian.Uint64(blk[8:])
	return gfMul(y, h)
}

// gfMul is the bitwise multiply from NIST SP 800-38D, algorithm 1. It runs
// once per IV.
func gfMul(x, y fieldElement) fieldElement {
	var z fieldElement
	v := y
	for i := 0; i < 128; i++ {
		var bit uint64
		if i < 64 {
			bit = x.hi >> (63 - i) & 1
		} else {
			bit = x.lo >> (127 - i) & 1
		}
		if bit == 1 {
			z.hi ^= v.hi
			z.lo ^= v.lo
		}
		lsb := v.lo & 1
		v.lo = v.lo>>1 | v.hi<<63
		v.hi >>= 1
		if lsb == 1 {
			v.hi ^= 0xe1 << 56
		}
	}
	return z
}

// inc32 increments the low 32 bits of the counter block modulo 2^32.
func inc32(ctr *[16]byte) {
	n := binary.BigEndian.Uint32(ctr[12:])
	binary.BigEndian.PutUint32(ctr[12:], n+1)
}
