// Package wacrypt decrypts encrypted chat backups (crypt12, crypt14 and
// crypt15) into the SQLite database they contain.
package wacrypt

import (
	"context"
	"log/slog"
	"os"

	"github.com/i5heu/wacrypt/pkg/bruteforce"
	"github.com/i5heu/wacrypt/pkg/container"
	"github.com/i5heu/wacrypt/pkg/decoder"
	"github.com/i5heu/wacrypt/pkg/decrypterr"
	"github.com/i5heu/wacrypt/pkg/keys"
)

// Source tells where the winning offsets came from.
type Source string

const (
	SourceFixed      Source = "fixed"
	SourceTable      Source = "table"
	SourceBruteForce Source = "bruteforce"
	SourceComputed   Source = "computed"
)

// Request is one decryption call.
type Request struct {
	Container []byte
	Key       []byte
	Format    container.Format
	// KeyKind selects the crypt15 layout; ignored for legacy formats.
	KeyKind container.KeyKind
	// OutputPath receives the plaintext unless DryRun is set.
	OutputPath string
	// ShowDerivedKey renders the crypt15 key stream as grouped hex.
	ShowDerivedKey bool
	DryRun         bool
	// KeyIsSerialized marks Key as a serialized crypt15 key export.
	KeyIsSerialized bool
	// MaxWorkers sizes the brute-force pool. 0 uses Config.Workers;
	// negative values are rejected.
	MaxWorkers int
}

// Result is a successful decryption.
type Result struct {
	Plaintext []byte
	// Candidate is the layout that validated.
	Candidate container.Candidate
	Source    Source
	// HexKey is set when ShowDerivedKey was requested for crypt15.
	HexKey string
}

// Decrypter is the entry point. It holds no per-call state and is safe for
// concurrent use.
type Decrypter struct {
	log    *slog.Logger
	config Config
	caps   Capabilities
	dec    *decoder.Decoder
}

// New probes the available backends and returns a Decrypter.
func New(conf Config) (*Decrypter, error) {
	conf = conf.withDefaults()

	var opts []decoder.Option
	if conf.Observer != nil {
		opts = append(opts, decoder.WithObserver(conf.Observer))
	}

	return &Decrypter{
		log:    conf.Logger,
		config: conf,
		caps: Capabilities{
			Cipher:         decoder.Probe() == nil,
			SerializedKeys: conf.BlobDecoder != nil,
		},
		dec: decoder.New(opts...),
	}, nil
}

// Capabilities reports what New found.
func (d *Decrypter) Capabilities() Capabilities {
	return d.caps
}

// Decrypt validates req, recovers the layout of req.Container and returns
// the SQLite plaintext. Unless req.DryRun is set the plaintext is also
// written to req.OutputPath. Every failure is a *decrypterr.Error.
func (d *Decrypter) Decrypt(ctx context.Context, req Request) (Result, error) {
	if err := d.checkCapabilities(req); err != nil {
		return Result{}, err
	}
	if !req.DryRun && req.OutputPath == "" {
		return Result{}, decrypterr.New(decrypterr.KindConfig,
			"the path to the decrypted database must be specified unless dry run is set")
	}
	workers := req.MaxWorkers
	if workers < 0 {
		return Result{}, decrypterr.New(decrypterr.KindConfig, "max workers must be positive, got %d", workers)
	}
	if workers == 0 {
		workers = d.config.Workers
	}

	if !req.Format.Valid() {
		return Result{}, decrypterr.New(decrypterr.KindInvalidFormat, "unsupported format %v", req.Format)
	}
	if minLen := req.Format.MinLength(); len(req.Container) < minLen {
		return Result{}, decrypterr.New(decrypterr.KindInvalidFormat,
			"the %s file must be at least %d bytes", req.Format, minLen)
	}

	var (
		res Result
		err error
	)
	switch req.Format {
	case container.LegacyA, container.LegacyB:
		res, err = d.decryptLegacy(ctx, req, workers)
	case container.Current:
		res, err = d.decryptCurrent(req)
	}
	if err != nil {
		return Result{}, err
	}

	if !req.DryRun {
		if err := os.WriteFile(req.OutputPath, res.Plaintext, 0o644); err != nil {
			return Result{}, decrypterr.Wrap(decrypterr.KindOutput, err, "write decrypted database")
		}
		d.log.Info("decrypted database written", "format", req.Format, "path", req.OutputPath,
			"bytes", len(res.Plaintext), "source", res.Source)
	}
	return res, nil
}

func (d *Decrypter) checkCapabilities(req Request) error {
	if !d.caps.Cipher {
		return decrypterr.New(decrypterr.KindDependencyUnavailable,
			"dependencies for backup decryption are not available")
	}
	if req.Format == container.Current && req.KeyIsSerialized && !d.caps.SerializedKeys {
		return decrypterr.New(decrypterr.KindDependencyUnavailable,
			"no decoder for serialized crypt15 key exports")
	}
	return nil
}

func (d *Decrypter) decryptLegacy(ctx context.Context, req Request, workers int) (Result, error) {
	if len(req.Key) != container.KeyFileLength {
		return Result{}, decrypterr.New(decrypterr.KindInvalidKey,
			"the key file must be %d bytes, got %d", container.KeyFileLength, len(req.Key))
	}
	if err := container.ValidateSignature(req.Format, req.Key, req.Container); err != nil {
		return Result{}, err
	}
	key, err := keys.LegacyKey(req.Key)
	if err != nil {
		return Result{}, err
	}

	if req.Format == container.LegacyA {
		iv, ct := container.LegacyASlices(req.Container)
		plain, err := d.dec.Decode(key, iv, ct)
		if err != nil {
			return Result{}, decrypterr.Wrap(decrypterr.KindDecryption, err, "crypt12")
		}
		return Result{
			Plaintext: plain,
			Candidate: container.Candidate{IVStart: 51, IVEnd: 67, DBStart: 67},
			Source:    SourceFixed,
		}, nil
	}
	return d.decryptLegacyB(ctx, req.Container, key, workers)
}

func (d *Decrypter) decryptLegacyB(ctx context.Context, raw, key []byte, workers int) (Result, error) {
	for _, c := range container.KnownOffsets() {
		iv, ct := c.Slice(raw)
		plain, err := d.dec.Decode(key, iv, ct)
		if err == nil {
			return Result{Plaintext: plain, Candidate: c, Source: SourceTable}, nil
		}
		if !decoder.IsRecoverable(err) {
			return Result{}, decrypterr.Wrap(decrypterr.KindDecryption, err, "crypt14")
		}
	}

	d.log.Info("common offsets failed, starting brute force", "workers", workers,
		"maxIV", d.config.MaxIV, "maxDB", d.config.MaxDB)

	found, err := bruteforce.Search(ctx, raw, key, bruteforce.Options{
		MaxIV:   d.config.MaxIV,
		MaxDB:   d.config.MaxDB,
		Workers: workers,
		Skip:    container.IsKnownOffset,
		Decoder: d.dec,
		Logger:  d.log,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Plaintext: found.Plaintext, Candidate: found.Candidate, Source: SourceBruteForce}, nil
}

func (d *Decrypter) decryptCurrent(req Request) (Result, error) {
	stream, err := keys.Extract(req.Key, req.KeyIsSerialized, d.config.BlobDecoder)
	if err != nil {
		return Result{}, err
	}
	derived, err := keys.Derive(stream)
	if err != nil {
		return Result{}, decrypterr.Wrap(decrypterr.KindDecryption, err, "crypt15")
	}

	var res Result
	if req.ShowDerivedKey {
		res.HexKey = keys.RenderHex(derived.Stream)
		d.log.Info("the HEX key of the crypt15 backup", "key", res.HexKey)
	}

	c, err := container.CurrentCandidate(req.Container, req.KeyKind)
	if err != nil {
		return Result{}, decrypterr.Wrap(decrypterr.KindInvalidFormat, err, "crypt15")
	}
	iv, ct := c.Slice(req.Container)
	plain, err := d.dec.Decode(derived.Key[:], iv, ct)
	if err != nil {
		return Result{}, decrypterr.Wrap(decrypterr.KindDecryption, err, "crypt15")
	}

	res.Plaintext = plain
	res.Candidate = c
	res.Source = SourceComputed
	return res, nil
}
