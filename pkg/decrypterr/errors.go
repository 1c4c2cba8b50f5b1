// Package decrypterr defines the closed set of terminal failures a backup
// decryption can end in. Every error that leaves the orchestrator is an
// *Error carrying exactly one Kind.
package decrypterr

import (
	"errors"
	"fmt"
)

// Kind classifies a terminal decryption failure.
type Kind uint8

const (
	// KindDecryption wraps lower-level failures that escaped the
	// per-candidate retry path.
	KindDecryption Kind = iota
	KindInvalidKey
	KindSignatureMismatch
	KindInvalidFormat
	KindOffsetsNotFound
	KindInterrupted
	KindDependencyUnavailable
	// KindConfig reports a request that cannot be delivered anywhere, such
	// as a missing output path or a non-positive worker count.
	KindConfig
	// KindOutput reports that the plaintext could not be written.
	KindOutput
)

func (k Kind) String() string {
	switch k {
	case KindDecryption:
		return "decryption failure"
	case KindInvalidKey:
		return "invalid key"
	case KindSignatureMismatch:
		return "signature mismatch"
	case KindInvalidFormat:
		return "invalid container format"
	case KindOffsetsNotFound:
		return "offsets not found"
	case KindInterrupted:
		return "search interrupted"
	case KindDependencyUnavailable:
		return "dependency unavailable"
	case KindConfig:
		return "configuration error"
	case KindOutput:
		return "output error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Error is the single error type surfaced to callers.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error

	// MaxIV and MaxDB are the searched bounds; only set for
	// KindOffsetsNotFound.
	MaxIV int
	MaxDB int
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrDecryption            = &Error{Kind: KindDecryption}
	ErrInvalidKey            = &Error{Kind: KindInvalidKey}
	ErrSignatureMismatch     = &Error{Kind: KindSignatureMismatch}
	ErrInvalidFormat         = &Error{Kind: KindInvalidFormat}
	ErrOffsetsNotFound       = &Error{Kind: KindOffsetsNotFound}
	ErrInterrupted           = &Error{Kind: KindInterrupted}
	ErrDependencyUnavailable = &Error{Kind: KindDependencyUnavailable}
	ErrConfig                = &Error{Kind: KindConfig}
	ErrOutput                = &Error{Kind: KindOutput}
)

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches sentinels by kind, so errors.Is(err, ErrInvalidKey) holds for
// every invalid-key error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Cause == nil
}

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind carrying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// OffsetsNotFound reports an exhausted brute-force search over
// [0,maxIV) x [0,maxDB).
func OffsetsNotFound(maxIV, maxDB int) *Error {
	return &Error{
		Kind:  KindOffsetsNotFound,
		Msg:   fmt.Sprintf("no valid offsets within iv<%d db<%d", maxIV, maxDB),
		MaxIV: maxIV,
		MaxDB: maxDB,
	}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
