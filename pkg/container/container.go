// Package container describes the byte layouts of the three encrypted
// backup generations: where the key signature, IV and ciphertext live.
package container

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the container generation. It is chosen by the caller; the
// container bytes carry no reliable marker for it.
type Format uint8

const (
	// LegacyA is crypt12: fixed offsets.
	LegacyA Format = iota + 1
	// LegacyB is crypt14: known-offset table, then brute force.
	LegacyB
	// Current is crypt15: offset computed from the leading length byte.
	Current
)

const (
	// IVLength is the IV size for every format.
	IVLength = 16
	// KeyFileLength is the exact size of a LegacyA/LegacyB key file.
	KeyFileLength = 158
	// LegacyKeyOffset is where the raw AES key starts inside a key file.
	LegacyKeyOffset = 126

	legacyAFooter = 20
)

func (f Format) String() string {
	switch f {
	case LegacyA:
		return "crypt12"
	case LegacyB:
		return "crypt14"
	case Current:
		return "crypt15"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// MinLength is the shortest container accepted for f; 0 for unknown
// formats.
func (f Format) MinLength() int {
	switch f {
	case LegacyA:
		return 67
	case LegacyB:
		return 191
	case Current:
		return 131
	default:
		return 0
	}
}

// Valid reports whether f is one of the known formats.
func (f Format) Valid() bool {
	return f >= LegacyA && f <= Current
}

// ParseFormat accepts "crypt12", "12", "legacy-a" and the equivalents for
// the other generations.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "crypt12", "12", "legacy-a", "legacya":
		return LegacyA, nil
	case "crypt14", "14", "legacy-b", "legacyb":
		return LegacyB, nil
	case "crypt15", "15", "current":
		return Current, nil
	}
	return 0, fmt.Errorf("container: unknown format %q", s)
}

// FormatFromName infers the format from a backup file name such as
// "msgstore.db.crypt14".
func FormatFromName(name string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if !strings.HasPrefix(ext, "crypt") {
		return 0, fmt.Errorf("container: cannot infer format from %q", filepath.Base(name))
	}
	return ParseFormat(ext)
}

// KeyKind selects the crypt15 layout variant. It has no effect on the
// legacy formats.
type KeyKind uint8

const (
	// Message is the msgstore database.
	Message KeyKind = iota
	// Contact is the wa (contacts) database.
	Contact
)

func (k KeyKind) String() string {
	switch k {
	case Message:
		return "message"
	case Contact:
		return "contact"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKeyKind accepts "message" or "contact".
func ParseKeyKind(s string) (KeyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "message", "msgstore":
		return Message, nil
	case "contact", "wa":
		return Contact, nil
	}
	return 0, fmt.Errorf("container: unknown key kind %q", s)
}

// Candidate is one hypothesis about where the IV and the ciphertext start.
type Candidate struct {
	IVStart int
	IVEnd   int
	DBStart int
}

// NewCandidate builds a candidate with a standard-length IV.
func NewCandidate(ivStart, dbStart int) Candidate {
	return Candidate{IVStart: ivStart, IVEnd: ivStart + IVLength, DBStart: dbStart}
}

func (c Candidate) String() string {
	return fmt.Sprintf("iv=[%d:%d] db=%d", c.IVStart, c.IVEnd, c.DBStart)
}

// Slice returns the IV and ciphertext c points at. Out-of-range bounds are
// clamped so a bad hypothesis yields short or empty slices rather than a
// panic. The returned slices alias raw.
func (c Candidate) Slice(raw []byte) (iv, ciphertext []byte) {
	return clamp(raw, c.IVStart, c.IVEnd), clamp(raw, c.DBStart, len(raw))
}

// LegacyASlices returns the fixed crypt12 IV and ciphertext. The last 20
// bytes are footer and excluded.
func LegacyASlices(raw []byte) (iv, ciphertext []byte) {
	return clamp(raw, 51, 67), clamp(raw, 67, len(raw)-legacyAFooter)
}

// CurrentCandidate computes the single crypt15 candidate from the leading
// header-length byte. raw must not be empty.
func CurrentCandidate(raw []byte, kind KeyKind) (Candidate, error) {
	if len(raw) == 0 {
		return Candidate{}, fmt.Errorf("container: empty crypt15 container")
	}
	switch kind {
	case Message:
		return Candidate{IVStart: 8, IVEnd: 24, DBStart: int(raw[0]) + 2}, nil
	case Contact:
		return Candidate{IVStart: 7, IVEnd: 23, DBStart: int(raw[0]) + 1}, nil
	}
	return Candidate{}, fmt.Errorf("container: invalid key kind %v", kind)
}

func clamp(raw []byte, start, end int) []byte {
	if start < 0 {
		start = 0
	}
	if end > len(raw) {
		end = len(raw)
	}
	if start >= end {
		return nil
	}
	return raw[start:end]
}
