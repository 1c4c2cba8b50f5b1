package decrypterr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByKind(t *testing.T) {
	err := New(KindInvalidKey, "key file must be %d bytes", 158)

	assert.True(t, errors.Is(err, ErrInvalidKey))
	assert.False(t, errors.Is(err, ErrInvalidFormat))
	assert.Equal(t, "key file must be 158 bytes", err.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(KindDecryption, io.ErrUnexpectedEOF, "crypt12")

	assert.True(t, errors.Is(err, ErrDecryption))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, "crypt12: unexpected EOF", err.Error())
}

func TestKindOfThroughFmtWrap(t *testing.T) {
	inner := OffsetsNotFound(200, 200)
	outer := fmt.Errorf("msgstore: %w", inner)

	kind, ok := KindOf(outer)
	require.True(t, ok)
	assert.Equal(t, KindOffsetsNotFound, kind)

	var e *Error
	require.True(t, errors.As(outer, &e))
	assert.Equal(t, 200, e.MaxIV)
	assert.Equal(t, 200, e.MaxDB)

	_, ok = KindOf(io.EOF)
	assert.False(t, ok)
}

func TestInterruptedAndExhaustedAreDistinct(t *testing.T) {
	interrupted := New(KindInterrupted, "stopped by operator")
	exhausted := OffsetsNotFound(10, 10)

	assert.False(t, errors.Is(interrupted, ErrOffsetsNotFound))
	assert.False(t, errors.Is(exhausted, ErrInterrupted))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "search interrupted", KindInterrupted.String())
	assert.Equal(t, "kind(200)", Kind(200).String())
	assert.Equal(t, "dependency unavailable", ErrDependencyUnavailable.Error())
}
