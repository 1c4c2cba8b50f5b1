package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/i5heu/wacrypt"
	"github.com/i5heu/wacrypt/internal/config"
	"github.com/i5heu/wacrypt/pkg/container"
	"github.com/i5heu/wacrypt/pkg/decrypterr"
	"github.com/i5heu/wacrypt/pkg/logging"
)

const (
	exitOK = iota
	exitUsage
	exitDecrypt
	exitDependency
	exitInterrupted
)

func main() {
	os.Exit(run())
}

func run() int {
	keyArg := flag.String("k", "", "key file or hex key")
	backup := flag.String("b", "", "encrypted msgstore backup (.crypt12, .crypt14 or .crypt15)")
	output := flag.String("o", "msgstore.db", "decrypted msgstore output path")
	wab := flag.String("wab", "", "optional encrypted wa.db (contacts) backup")
	waOut := flag.String("wa-out", "wa.db", "decrypted wa.db output path")
	formatArg := flag.String("format", "", "backup format (crypt12, crypt14, crypt15); inferred from the file name if empty")
	showKey := flag.Bool("showkey", false, "print the crypt15 key in hex")
	dryRun := flag.Bool("dry-run", false, "decrypt without writing the database")
	workers := flag.Int("workers", 0, "crypt14 brute-force workers (0 uses the config value)")
	configPath := flag.String("config", "", "optional YAML config file")
	logLevel := flag.String("log-level", "", "debug, info, warn or error")
	noColor := flag.Bool("no-color", false, "disable colored log output")
	flag.Parse()

	if *keyArg == "" || *backup == "" {
		fmt.Fprintln(os.Stderr, "Usage: wacrypt -k <key file or hex> -b <backup> [-o <output>] [-wab <wa backup> -wa-out <output>]")
		flag.PrintDefaults()
		return exitUsage
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return exitUsage
	}
	if *logLevel != "" {
		conf.LogLevel = *logLevel
	}
	level, err := logging.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		return exitUsage
	}
	log := logging.New(os.Stderr, level, conf.NoColor || *noColor)

	var format container.Format
	if *formatArg != "" {
		if format, err = container.ParseFormat(*formatArg); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
			return exitUsage
		}
	}

	d, err := wacrypt.New(wacrypt.Config{
		Logger:  log,
		MaxIV:   conf.MaxIV,
		MaxDB:   conf.MaxDB,
		Workers: conf.Workers,
	})
	if err != nil {
		log.Error("init failed", "error", err)
		return exitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	req := wacrypt.Request{
		Format:         format,
		KeyKind:        container.Message,
		OutputPath:     *output,
		ShowDerivedKey: *showKey,
		DryRun:         *dryRun,
		MaxWorkers:     *workers,
	}
	res, err := d.DecryptFile(ctx, *backup, *keyArg, req)
	if err != nil {
		log.Error("decryption failed", "backup", *backup, "error", err)
		return exitCode(err)
	}
	if res.HexKey != "" {
		fmt.Println(res.HexKey)
	}
	log.Info("msgstore decrypted", "source", res.Source, "offsets", res.Candidate.String())

	if *wab == "" {
		return exitOK
	}
	req.KeyKind = container.Contact
	req.OutputPath = *waOut
	req.ShowDerivedKey = false
	if _, err := d.DecryptFile(ctx, *wab, *keyArg, req); err != nil {
		log.Error("decryption failed", "backup", *wab, "error", err)
		return exitCode(err)
	}
	log.Info("wa.db decrypted", "path", *waOut)
	return exitOK
}

func exitCode(err error) int {
	kind, ok := decrypterr.KindOf(err)
	if !ok {
		return exitDecrypt
	}
	switch kind {
	case decrypterr.KindConfig:
		return exitUsage
	case decrypterr.KindDependencyUnavailable:
		return exitDependency
	case decrypterr.KindInterrupted:
		return exitInterrupted
	default:
		return exitDecrypt
	}
}
