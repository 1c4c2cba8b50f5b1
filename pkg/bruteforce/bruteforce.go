// Package bruteforce searches crypt14 containers for the IV and ciphertext
// offsets when none of the known offsets validate.
package bruteforce

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/i5heu/wacrypt/pkg/container"
	"github.com/i5heu/wacrypt/pkg/decoder"
	"github.com/i5heu/wacrypt/pkg/decrypterr"
	"github.com/i5heu/wacrypt/pkg/logging"
	workerpool "github.com/i5heu/wacrypt/pkg/workerPool"
)

const (
	DefaultMaxIV   = 200
	DefaultMaxDB   = 200
	DefaultWorkers = 10
)

// State is the lifecycle of a search.
type State uint8

const (
	Idle State = iota
	Searching
	Found
	Exhausted
	Interrupted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Found:
		return "found"
	case Exhausted:
		return "exhausted"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Options bound the search. Zero values take the defaults.
type Options struct {
	MaxIV   int
	MaxDB   int
	Workers int

	// Skip excludes candidates that were already tried.
	Skip func(container.Candidate) bool

	Decoder *decoder.Decoder
	Logger  *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxIV <= 0 {
		o.MaxIV = DefaultMaxIV
	}
	if o.MaxDB <= 0 {
		o.MaxDB = DefaultMaxDB
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Decoder == nil {
		o.Decoder = decoder.New()
	}
	if o.Logger == nil {
		o.Logger = logging.Logger
	}
	return o
}

// Result is a successful search.
type Result struct {
	Candidate container.Candidate
	Plaintext []byte
}

// Searcher runs one search. It is not reusable.
type Searcher struct {
	opts  Options
	state atomic.Uint32
}

// New returns an idle Searcher.
func New(opts Options) *Searcher {
	return &Searcher{opts: opts.withDefaults()}
}

// State reports the current lifecycle state.
func (s *Searcher) State() State {
	return State(s.state.Load())
}

func (s *Searcher) setState(st State) {
	s.state.Store(uint32(st))
}

// Search is a one-shot helper around New(opts).Run.
func Search(ctx context.Context, raw, key []byte, opts Options) (Result, error) {
	return New(opts).Run(ctx, raw, key)
}

// Run enumerates iv in [0,MaxIV) and db in [0,MaxDB), iv outermost, and
// decodes each candidate on a bounded pool. The first candidate that
// validates wins and cancels the rest. Cancelling ctx ends the search with
// a KindInterrupted error without waiting for running workers.
func (s *Searcher) Run(ctx context.Context, raw, key []byte) (Result, error) {
	if !s.state.CompareAndSwap(uint32(Idle), uint32(Searching)) {
		return Result{}, decrypterr.New(decrypterr.KindConfig, "bruteforce: searcher already used")
	}
	opts := s.opts
	log := opts.Logger

	pool := workerpool.NewWorkerPool(ctx, workerpool.Config{WorkerCount: opts.Workers})
	found := make(chan Result, 1)
	fatal := make(chan error, 1)

	attempt := func(c container.Candidate) workerpool.Task {
		return func(context.Context) {
			if pool.Stopped() {
				return
			}
			iv, ct := c.Slice(raw)
			plain, err := opts.Decoder.Decode(key, iv, ct)
			switch {
			case err == nil:
				if pool.Stop() {
					found <- Result{Candidate: c, Plaintext: plain}
				}
			case !decoder.IsRecoverable(err):
				if pool.Stop() {
					fatal <- err
				}
			}
		}
	}

produce:
	for iv := 0; iv < opts.MaxIV; iv++ {
		for db := 0; db < opts.MaxDB; db++ {
			c := container.NewCandidate(iv, db)
			if opts.Skip != nil && opts.Skip(c) {
				continue
			}
			if !pool.Submit(attempt(c)) {
				break produce
			}
		}
	}
	pool.Close()

	select {
	case r := <-found:
		return s.found(log, r)
	case err := <-fatal:
		return Result{}, decrypterr.Wrap(decrypterr.KindDecryption, err, "bruteforce")
	case <-ctx.Done():
		pool.Stop()
		return s.interrupted(log, found)
	case <-pool.Done():
	}

	// Workers are gone; a late winner or interrupt may still be pending.
	select {
	case r := <-found:
		return s.found(log, r)
	case err := <-fatal:
		return Result{}, decrypterr.Wrap(decrypterr.KindDecryption, err, "bruteforce")
	default:
	}
	if ctx.Err() != nil {
		return s.interrupted(log, found)
	}

	s.setState(Exhausted)
	return Result{}, decrypterr.OffsetsNotFound(opts.MaxIV, opts.MaxDB)
}

func (s *Searcher) found(log *slog.Logger, r Result) (Result, error) {
	s.setState(Found)
	log.Warn("found crypt14 offsets; please report them so they can be added to the known offsets",
		"iv", r.Candidate.IVStart, "db", r.Candidate.DBStart)
	return r, nil
}

func (s *Searcher) interrupted(log *slog.Logger, found <-chan Result) (Result, error) {
	select {
	case r := <-found:
		return s.found(log, r)
	default:
	}
	s.setState(Interrupted)
	log.Warn("brute force interrupted")
	return Result{}, decrypterr.New(decrypterr.KindInterrupted, "brute force interrupted")
}
