// Package store provides remote mirrors for the local token cache. A mirror
// holds a backup copy of the cache file that can restore it on a new machine;
// it is never consulted while a local cache exists.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/router-for-me/oauth-cli-kit/internal/config"
)

// ErrNotFound is returned by Pull when the mirror holds no copy for the key.
var ErrNotFound = errors.New("store: token not found in mirror")

// Mirror is a remote copy of token cache payloads keyed by cache file name.
type Mirror interface {
	// Name identifies the backend in logs.
	Name() string
	// Push stores payload under key, replacing any previous copy.
	Push(ctx context.Context, key string, payload []byte) error
	// Pull returns the payload stored under key or ErrNotFound.
	Pull(ctx context.Context, key string) ([]byte, error)
	// Delete removes the copy under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// New builds the mirror selected by cfg.Type. It returns nil, nil when no mirror is configured.
func New(ctx context.Context, cfg config.MirrorConfig) (Mirror, error) {
	switch cfg.Type {
	case config.MirrorNone:
		return nil, nil
	case config.MirrorObject:
		return NewObjectMirror(ctx, ObjectMirrorConfig{
			Endpoint:  cfg.Object.Endpoint,
			Bucket:    cfg.Object.Bucket,
			AccessKey: cfg.Object.AccessKey,
			SecretKey: cfg.Object.SecretKey,
			Region:    cfg.Object.Region,
			Prefix:    cfg.Object.Prefix,
			UseSSL:    cfg.Object.UseSSL,
		})
	case config.MirrorPostgres:
		return NewPostgresMirror(ctx, PostgresMirrorConfig{
			DSN:    cfg.Postgres.DSN,
			Schema: cfg.Postgres.Schema,
			Table:  cfg.Postgres.Table,
		})
	case config.MirrorKeyring:
		return NewKeyringMirror(cfg.Keyring.Service), nil
	default:
		return nil, fmt.Errorf("store: unsupported mirror type %q", cfg.Type)
	}
}
