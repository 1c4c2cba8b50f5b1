package wacrypt

import (
	"log/slog"

	"github.com/i5heu/wacrypt/pkg/bruteforce"
	"github.com/i5heu/wacrypt/pkg/keys"
	"github.com/i5heu/wacrypt/pkg/logging"
)

// Config configures a Decrypter. Zero values take the defaults.
type Config struct {
	// Logger is an optional structured logger. If nil, the tint logger from
	// pkg/logging is used.
	Logger *slog.Logger
	// MaxIV and MaxDB bound the crypt14 brute-force search.
	MaxIV int
	MaxDB int
	// Workers is the default brute-force pool size when a Request does not
	// set one.
	Workers int
	// BlobDecoder decodes serialized crypt15 key exports. If nil, the Java
	// byte[] decoder is used.
	BlobDecoder keys.BlobDecoder
	// Observer, if set, is called before every cipher attempt.
	Observer func()
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = logging.Logger
	}
	if c.MaxIV <= 0 {
		c.MaxIV = bruteforce.DefaultMaxIV
	}
	if c.MaxDB <= 0 {
		c.MaxDB = bruteforce.DefaultMaxDB
	}
	if c.Workers <= 0 {
		c.Workers = bruteforce.DefaultWorkers
	}
	if c.BlobDecoder == nil {
		c.BlobDecoder = keys.JavaByteArrayDecoder{}
	}
	return c
}

// Capabilities records which backends this build can use. It is probed
// once in New.
type Capabilities struct {
	// Cipher is false when AES cannot be constructed.
	Cipher bool
	// SerializedKeys is false when no BlobDecoder is available.
	SerializedKeys bool
}
