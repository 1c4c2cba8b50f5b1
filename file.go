package wacrypt

import (
	"context"
	"os"

	"github.com/i5heu/wacrypt/pkg/container"
	"github.com/i5heu/wacrypt/pkg/decrypterr"
	"github.com/i5heu/wacrypt/pkg/keys"
)

// DecryptFile reads the backup at containerPath and the key at keyArg (a
// key file or a hex string) and decrypts them with req's remaining
// settings. A zero req.Format is inferred from the backup file name, and
// serialized key exports are detected by their stream magic.
func (d *Decrypter) DecryptFile(ctx context.Context, containerPath, keyArg string, req Request) (Result, error) {
	if !req.Format.Valid() {
		f, err := container.FormatFromName(containerPath)
		if err != nil {
			return Result{}, decrypterr.Wrap(decrypterr.KindInvalidFormat, err,
				"unknown backup format; the file must be crypt12, crypt14 or crypt15")
		}
		req.Format = f
	}

	raw, err := os.ReadFile(containerPath)
	if err != nil {
		return Result{}, decrypterr.Wrap(decrypterr.KindConfig, err, "read backup")
	}
	key, err := keys.Load(keyArg)
	if err != nil {
		return Result{}, err
	}

	req.Container = raw
	req.Key = key
	if req.Format == container.Current && keys.LooksSerialized(key) {
		req.KeyIsSerialized = true
	}
	return d.Decrypt(ctx, req)
}
