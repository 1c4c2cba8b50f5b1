package wacrypt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i5heu/wacrypt/internal/testutil"
	"github.com/i5heu/wacrypt/pkg/container"
	"github.com/i5heu/wacrypt/pkg/decrypterr"
	"github.com/i5heu/wacrypt/pkg/keys"
	"github.com/i5heu/wacrypt/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var (
	testSig = testutil.Fill(32, 0x5C)
	testKey = testutil.Fill(32, 0x3D)
)

func newTestDecrypter(t *testing.T, attempts *atomic.Int64, conf Config) *Decrypter {
	t.Helper()
	if conf.Logger == nil {
		conf.Logger = logging.New(io.Discard, slog.LevelError, true)
	}
	if attempts != nil {
		conf.Observer = func() { attempts.Add(1) }
	}
	d, err := New(conf)
	require.NoError(t, err)
	return d
}

func TestLegacyAConcreteScenario(t *testing.T) {
	var attempts atomic.Int64
	d := newTestDecrypter(t, &attempts, Config{})

	want := []byte("SQLite test content")
	iv := testutil.Fill(16, 0x90)
	raw := testutil.LegacyA(t, testSig, testKey, iv, want)
	for i := 0; i < 67; i++ {
		if (i < 3 || i >= 35) && (i < 51) {
			require.Zero(t, raw[i], "byte %d outside the signature and IV must be zero", i)
		}
	}

	res, err := d.Decrypt(context.Background(), Request{
		Container: raw,
		Key:       testutil.LegacyKeyFile(testSig, testKey),
		Format:    container.LegacyA,
		DryRun:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, want, res.Plaintext)
	assert.Equal(t, SourceFixed, res.Source)
	assert.Equal(t, int64(1), attempts.Load())
}

func TestLegacyBKnownOffsets(t *testing.T) {
	for i, c := range container.KnownOffsets() {
		db := testutil.SQLite("table entry")
		raw := testutil.LegacyB(t, testSig, testKey, c.IVStart, c.DBStart, db, 191)

		var attempts atomic.Int64
		d := newTestDecrypter(t, &attempts, Config{})
		res, err := d.Decrypt(context.Background(), Request{
			Container: raw,
			Key:       testutil.LegacyKeyFile(testSig, testKey),
			Format:    container.LegacyB,
			DryRun:    true,
		})
		require.NoError(t, err, "entry %d %v", i, c)
		assert.Equal(t, db, res.Plaintext)
		assert.True(t, bytes.EqualFold(res.Plaintext[:6], []byte("SQLITE")))
		assert.Equal(t, SourceTable, res.Source)
		assert.Equal(t, c, res.Candidate)
		// Entries are tried in order, so entry i costs exactly i+1 attempts.
		assert.Equal(t, int64(i+1), attempts.Load(), "entry %d", i)
	}
}

func TestLegacyBBruteForce(t *testing.T) {
	var attempts atomic.Int64
	d := newTestDecrypter(t, &attempts, Config{})

	db := testutil.SQLite("found by search")
	raw := testutil.LegacyB(t, testSig, testKey, 52, 110, db, 191)

	res, err := d.Decrypt(context.Background(), Request{
		Container:  raw,
		Key:        testutil.LegacyKeyFile(testSig, testKey),
		Format:     container.LegacyB,
		DryRun:     true,
		MaxWorkers: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, db, res.Plaintext)
	assert.Equal(t, SourceBruteForce, res.Source)
	assert.Equal(t, container.NewCandidate(52, 110), res.Candidate)
	assert.Less(t, attempts.Load(), int64(200*200))
}

func TestLegacyBOffsetsNotFound(t *testing.T) {
	d := newTestDecrypter(t, nil, Config{MaxIV: 8, MaxDB: 8})
	raw := testutil.LegacyB(t, testSig, testKey, 52, 110, testutil.SQLite("x"), 191)

	_, err := d.Decrypt(context.Background(), Request{
		Container: raw,
		Key:       testutil.LegacyKeyFile(testSig, testKey),
		Format:    container.LegacyB,
		DryRun:    true,
	})
	assert.True(t, errors.Is(err, decrypterr.ErrOffsetsNotFound))
}

func TestLegacyBInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int64
	d := newTestDecrypter(t, nil, Config{Observer: func() {
		if attempts.Add(1) == 300 {
			cancel()
		}
	}})
	raw := testutil.LegacyB(t, testSig, testKey, 180, 199, testutil.SQLite("x"), 300)

	_, err := d.Decrypt(ctx, Request{
		Container:  raw,
		Key:        testutil.LegacyKeyFile(testSig, testKey),
		Format:     container.LegacyB,
		DryRun:     true,
		MaxWorkers: 3,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, decrypterr.ErrInterrupted))

	time.Sleep(50 * time.Millisecond)
	settled := attempts.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, attempts.Load())
}

func TestShortContainersRejected(t *testing.T) {
	d := newTestDecrypter(t, nil, Config{})

	rapid.Check(t, func(t *rapid.T) {
		format := rapid.SampledFrom([]container.Format{container.LegacyA, container.LegacyB, container.Current}).Draw(t, "format")
		raw := rapid.SliceOfN(rapid.Byte(), 0, format.MinLength()-1).Draw(t, "container")
		key := rapid.SliceOfN(rapid.Byte(), 0, 200).Draw(t, "key")

		_, err := d.Decrypt(context.Background(), Request{Container: raw, Key: key, Format: format, DryRun: true})
		if !errors.Is(err, decrypterr.ErrInvalidFormat) {
			t.Fatalf("%v container of %d bytes: got %v", format, len(raw), err)
		}
	})
}

func TestSignatureMismatchDoesNoCipherWork(t *testing.T) {
	other := testutil.Fill(32, 0x01)

	for _, format := range []container.Format{container.LegacyA, container.LegacyB} {
		var attempts atomic.Int64
		d := newTestDecrypter(t, &attempts, Config{})

		var raw []byte
		if format == container.LegacyA {
			raw = testutil.LegacyA(t, testSig, testKey, testutil.Fill(16, 2), testutil.SQLite("x"))
		} else {
			raw = testutil.LegacyB(t, testSig, testKey, 52, 110, testutil.SQLite("x"), 191)
		}

		_, err := d.Decrypt(context.Background(), Request{
			Container: raw,
			Key:       testutil.LegacyKeyFile(other, testKey),
			Format:    format,
			DryRun:    true,
		})
		assert.True(t, errors.Is(err, decrypterr.ErrSignatureMismatch), "%v: %v", format, err)
		assert.Zero(t, attempts.Load(), "%v", format)
	}
}

func TestLegacyKeyLength(t *testing.T) {
	d := newTestDecrypter(t, nil, Config{})
	raw := testutil.LegacyA(t, testSig, testKey, testutil.Fill(16, 2), testutil.SQLite("x"))

	_, err := d.Decrypt(context.Background(), Request{
		Container: raw,
		Key:       testutil.LegacyKeyFile(testSig, testKey)[:157],
		Format:    container.LegacyA,
		DryRun:    true,
	})
	assert.True(t, errors.Is(err, decrypterr.ErrInvalidKey))
}

func TestCurrentMessageAndContact(t *testing.T) {
	root := testutil.Fill(32, 0x77)
	derived, err := keys.Derive(root)
	require.NoError(t, err)

	for _, kind := range []container.KeyKind{container.Message, container.Contact} {
		db := testutil.SQLite("crypt15 " + kind.String())
		raw := testutil.Current(t, derived.Key[:], kind == container.Contact, 40, db)

		d := newTestDecrypter(t, nil, Config{})
		res, err := d.Decrypt(context.Background(), Request{
			Container:      raw,
			Key:            root,
			Format:         container.Current,
			KeyKind:        kind,
			DryRun:         true,
			ShowDerivedKey: true,
		})
		require.NoError(t, err, kind.String())
		assert.Equal(t, db, res.Plaintext)
		assert.Equal(t, SourceComputed, res.Source)
		assert.Equal(t, keys.RenderHex(root), res.HexKey)
	}
}

func TestCurrentWrongKindFails(t *testing.T) {
	root := testutil.Fill(32, 0x77)
	derived, err := keys.Derive(root)
	require.NoError(t, err)
	raw := testutil.Current(t, derived.Key[:], false, 40, testutil.SQLite("x"))

	d := newTestDecrypter(t, nil, Config{})
	_, err = d.Decrypt(context.Background(), Request{
		Container: raw,
		Key:       root,
		Format:    container.Current,
		KeyKind:   container.Contact,
		DryRun:    true,
	})
	assert.True(t, errors.Is(err, decrypterr.ErrDecryption))
}

func TestCurrentSerializedKey(t *testing.T) {
	root := testutil.Fill(32, 0x80)
	derived, err := keys.Derive(root)
	require.NoError(t, err)
	db := testutil.SQLite("from key export")
	raw := testutil.Current(t, derived.Key[:], false, 30, db)

	blob := append([]byte{0xAC, 0xED, 0x00, 0x05, 0x75, 0x72, 0x00, 0x02, '[', 'B',
		0xAC, 0xF3, 0x17, 0xF8, 0x06, 0x08, 0x54, 0xE0, 0x02, 0x00, 0x00, 0x78, 0x70,
		0x00, 0x00, 0x00, 0x20}, root...)

	d := newTestDecrypter(t, nil, Config{})
	res, err := d.Decrypt(context.Background(), Request{
		Container:       raw,
		Key:             blob,
		Format:          container.Current,
		KeyIsSerialized: true,
		DryRun:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, db, res.Plaintext)
	assert.Empty(t, res.HexKey)
}

func TestDependencyUnavailable(t *testing.T) {
	var attempts atomic.Int64
	d := newTestDecrypter(t, &attempts, Config{})
	d.caps.Cipher = false

	_, err := d.Decrypt(context.Background(), Request{Format: container.LegacyA})
	assert.True(t, errors.Is(err, decrypterr.ErrDependencyUnavailable))

	d.caps = Capabilities{Cipher: true}
	_, err = d.Decrypt(context.Background(), Request{Format: container.Current, KeyIsSerialized: true})
	assert.True(t, errors.Is(err, decrypterr.ErrDependencyUnavailable))
	assert.Zero(t, attempts.Load())
}

func TestOutputRequiredUnlessDryRun(t *testing.T) {
	var attempts atomic.Int64
	d := newTestDecrypter(t, &attempts, Config{})
	raw := testutil.LegacyA(t, testSig, testKey, testutil.Fill(16, 2), testutil.SQLite("x"))

	_, err := d.Decrypt(context.Background(), Request{
		Container: raw,
		Key:       testutil.LegacyKeyFile(testSig, testKey),
		Format:    container.LegacyA,
	})
	assert.True(t, errors.Is(err, decrypterr.ErrConfig))
	assert.Zero(t, attempts.Load())
}

func TestNegativeWorkersRejected(t *testing.T) {
	d := newTestDecrypter(t, nil, Config{})
	_, err := d.Decrypt(context.Background(), Request{Format: container.LegacyB, DryRun: true, MaxWorkers: -1})
	assert.True(t, errors.Is(err, decrypterr.ErrConfig))
}

func TestWritesOutput(t *testing.T) {
	d := newTestDecrypter(t, nil, Config{})
	want := testutil.SQLite("written")
	raw := testutil.LegacyA(t, testSig, testKey, testutil.Fill(16, 2), want)
	out := filepath.Join(t.TempDir(), "msgstore.db")

	_, err := d.Decrypt(context.Background(), Request{
		Container:  raw,
		Key:        testutil.LegacyKeyFile(testSig, testKey),
		Format:     container.LegacyA,
		OutputPath: out,
	})
	require.NoError(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = d.Decrypt(context.Background(), Request{
		Container:  raw,
		Key:        testutil.LegacyKeyFile(testSig, testKey),
		Format:     container.LegacyA,
		OutputPath: filepath.Join(t.TempDir(), "missing", "dir", "msgstore.db"),
	})
	assert.True(t, errors.Is(err, decrypterr.ErrOutput))
}

func TestDecryptFile(t *testing.T) {
	dir := t.TempDir()
	root := testutil.Fill(32, 0x21)
	derived, err := keys.Derive(root)
	require.NoError(t, err)

	want := testutil.SQLite("from disk")
	backup := filepath.Join(dir, "msgstore.db.crypt15")
	require.NoError(t, os.WriteFile(backup, testutil.Current(t, derived.Key[:], false, 24, want), 0o600))

	d := newTestDecrypter(t, nil, Config{})
	out := filepath.Join(dir, "msgstore.db")
	res, err := d.DecryptFile(context.Background(), backup, keys.RenderHex(root), Request{OutputPath: out})
	require.NoError(t, err)
	assert.Equal(t, want, res.Plaintext)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = d.DecryptFile(context.Background(), filepath.Join(dir, "msgstore.db"), keys.RenderHex(root), Request{DryRun: true})
	assert.True(t, errors.Is(err, decrypterr.ErrInvalidFormat))
}
