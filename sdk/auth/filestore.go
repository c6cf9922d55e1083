package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/router-for-me/oauth-cli-kit/internal/auth/codex"
	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
	"github.com/router-for-me/oauth-cli-kit/internal/config"
	"github.com/router-for-me/oauth-cli-kit/internal/metrics"
	"github.com/router-for-me/oauth-cli-kit/internal/misc"
	"github.com/router-for-me/oauth-cli-kit/internal/store"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultImporters returns the importers used by stores that Login and
// GetToken build when the caller passes none.
func DefaultImporters(provider oauth.ProviderConfig) []TokenImporter {
	return []TokenImporter{codex.NewCLIImporter(provider)}
}

// TokenPathEnv replaces the computed cache file path entirely when set.
const TokenPathEnv = "OAUTH_CLI_KIT_TOKEN_PATH"

// FileTokenStore persists the current token as a JSON file. Writes replace the
// file atomically, so plain reads need no lock.
type FileTokenStore struct {
	mu        sync.Mutex
	path      string
	importers []TokenImporter
	mirror    store.Mirror
}

type storeOptions struct {
	dataDir   string
	fileName  string
	importers []TokenImporter
	mirror    store.Mirror
}

// StoreOption configures NewFileTokenStore.
type StoreOption func(*storeOptions)

// WithDataDir sets the application data directory. The file lives in <dir>/auth.
func WithDataDir(dir string) StoreOption {
	return func(o *storeOptions) { o.dataDir = dir }
}

// WithFileName sets the cache file name, usually ProviderConfig.TokenFileName.
func WithFileName(name string) StoreOption {
	return func(o *storeOptions) { o.fileName = name }
}

// WithImporters sets the sources tried in order when the cache file is absent.
func WithImporters(importers ...TokenImporter) StoreOption {
	return func(o *storeOptions) { o.importers = append(o.importers, importers...) }
}

// WithMirror sets the remote copy pushed on save and pulled when no importer succeeds.
func WithMirror(m store.Mirror) StoreOption {
	return func(o *storeOptions) { o.mirror = m }
}

// NewFileTokenStore builds a store for the resolved cache path.
func NewFileTokenStore(opts ...StoreOption) (*FileTokenStore, error) {
	var o storeOptions
	for _, opt := range opts {
		opt(&o)
	}
	path, err := ResolveTokenPath(o.dataDir, o.fileName)
	if err != nil {
		return nil, err
	}
	return &FileTokenStore{
		path:      path,
		importers: o.importers,
		mirror:    o.mirror,
	}, nil
}

// ResolveTokenPath returns <dataDir>/auth/<fileName>, or the value of
// OAUTH_CLI_KIT_TOKEN_PATH when set. An empty dataDir uses the per-user config directory.
func ResolveTokenPath(dataDir, fileName string) (string, error) {
	if override := strings.TrimSpace(os.Getenv(TokenPathEnv)); override != "" {
		return config.ResolvePath(override)
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return "", fmt.Errorf("auth filestore: token file name is required")
	}
	dir, err := config.ResolvePath(dataDir)
	if err != nil {
		return "", err
	}
	if dir == "" {
		base, errDir := os.UserConfigDir()
		if errDir != nil {
			return "", fmt.Errorf("auth filestore: resolve data dir: %w", errDir)
		}
		dir = filepath.Join(base, config.AppName)
	}
	return filepath.Join(dir, "auth", fileName), nil
}

// Path returns the cache file path.
func (s *FileTokenStore) Path() string {
	return s.path
}

// Load reads the cached token. A missing file triggers one pass over the
// importers and then the mirror; the first hit is written back locally.
// Unreadable or invalid content yields no token.
func (s *FileTokenStore) Load(ctx context.Context) (*oauth.Token, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s.restore(ctx)
		}
		log.WithField("path", s.path).Warnf("failed to read token cache: %v", err)
		return nil, false
	}
	token, ok := parseTokenFile(data)
	if !ok {
		log.WithField("path", s.path).Debug("token cache is not a valid token file")
	}
	return token, ok
}

// Save writes token atomically with owner-only permissions and then pushes
// the payload to the mirror, best-effort.
func (s *FileTokenStore) Save(ctx context.Context, token *oauth.Token) error {
	if token == nil {
		return fmt.Errorf("auth filestore: token is nil")
	}
	payload, err := marshalToken(token)
	if err != nil {
		return err
	}
	if err = s.writeFile(payload); err != nil {
		return err
	}
	s.push(ctx, payload)
	return nil
}

// Delete removes the cache file and the mirror copy. A missing file is not an error.
func (s *FileTokenStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	err := os.Remove(s.path)
	s.mu.Unlock()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("auth filestore: delete failed: %w", err)
	}
	if s.mirror != nil {
		if errMirror := s.mirror.Delete(ctx, s.mirrorKey()); errMirror != nil {
			metrics.MirrorErrors.WithLabelValues(s.mirror.Name(), "delete").Inc()
			log.WithField("mirror", s.mirror.Name()).Warnf("failed to delete mirrored token: %v", errMirror)
		}
	}
	return nil
}

func (s *FileTokenStore) restore(ctx context.Context) (*oauth.Token, bool) {
	for _, importer := range s.importers {
		token, err := importer.Import(ctx)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.WithField("source", importer.Name()).Debug("nothing to import")
			} else {
				log.WithField("source", importer.Name()).Warnf("token import failed: %v", err)
			}
			continue
		}
		if token == nil || token.Access == "" || token.Refresh == "" {
			continue
		}
		if errSave := s.Save(ctx, token); errSave != nil {
			log.WithField("source", importer.Name()).Warnf("failed to store imported token: %v", errSave)
		}
		metrics.CacheImports.WithLabelValues(importer.Name()).Inc()
		log.WithFields(log.Fields{"source": importer.Name(), "path": s.path}).Info("imported existing credentials")
		return token, true
	}

	if s.mirror == nil {
		return nil, false
	}
	payload, err := s.mirror.Pull(ctx, s.mirrorKey())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			metrics.MirrorErrors.WithLabelValues(s.mirror.Name(), "pull").Inc()
			log.WithField("mirror", s.mirror.Name()).Warnf("failed to pull mirrored token: %v", err)
		}
		return nil, false
	}
	token, ok := parseTokenFile(payload)
	if !ok {
		log.WithField("mirror", s.mirror.Name()).Warn("mirrored token is not a valid token file")
		return nil, false
	}
	normalized, err := marshalToken(token)
	if err == nil {
		err = s.writeFile(normalized)
	}
	if err != nil {
		log.WithField("mirror", s.mirror.Name()).Warnf("failed to restore mirrored token: %v", err)
	}
	metrics.CacheImports.WithLabelValues("mirror:" + s.mirror.Name()).Inc()
	log.WithFields(log.Fields{"mirror": s.mirror.Name(), "path": s.path}).Info("restored credentials from mirror")
	return token, true
}

func (s *FileTokenStore) writeFile(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("auth filestore: create dir failed: %w", err)
	}
	misc.LogSavingCredentials(s.path)

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("auth filestore: create temp file failed: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if errChmod := tmp.Chmod(0o600); errChmod != nil {
		log.Debugf("auth filestore: chmod not supported for %s: %v", tmpName, errChmod)
	}
	if _, err = tmp.Write(payload); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("auth filestore: write temp file failed: %w", err)
	}
	if err = tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("auth filestore: close temp file failed: %w", err)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("auth filestore: replace token file failed: %w", err)
	}
	return nil
}

func (s *FileTokenStore) push(ctx context.Context, payload []byte) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Push(ctx, s.mirrorKey(), payload); err != nil {
		metrics.MirrorErrors.WithLabelValues(s.mirror.Name(), "push").Inc()
		log.WithField("mirror", s.mirror.Name()).Warnf("failed to mirror token: %v", err)
	}
}

func (s *FileTokenStore) mirrorKey() string {
	return filepath.Base(s.path)
}

// marshalToken renders the cache schema {access, refresh, expires, account_id?}.
func marshalToken(token *oauth.Token) ([]byte, error) {
	payload := []byte("{}")
	var err error
	if payload, err = sjson.SetBytes(payload, "access", token.Access); err != nil {
		return nil, fmt.Errorf("auth filestore: encode token: %w", err)
	}
	if payload, err = sjson.SetBytes(payload, "refresh", token.Refresh); err != nil {
		return nil, fmt.Errorf("auth filestore: encode token: %w", err)
	}
	if payload, err = sjson.SetBytes(payload, "expires", token.Expires); err != nil {
		return nil, fmt.Errorf("auth filestore: encode token: %w", err)
	}
	if token.AccountID != "" {
		if payload, err = sjson.SetBytes(payload, "account_id", token.AccountID); err != nil {
			return nil, fmt.Errorf("auth filestore: encode token: %w", err)
		}
	}
	return payload, nil
}

func parseTokenFile(data []byte) (*oauth.Token, bool) {
	if !gjson.ValidBytes(data) {
		return nil, false
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, false
	}
	access := root.Get("access")
	refresh := root.Get("refresh")
	expires := root.Get("expires")
	if access.Type != gjson.String || access.Str == "" {
		return nil, false
	}
	if refresh.Type != gjson.String || refresh.Str == "" {
		return nil, false
	}
	if expires.Type != gjson.Number {
		return nil, false
	}
	return &oauth.Token{
		Access:    access.Str,
		Refresh:   refresh.Str,
		Expires:   expires.Int(),
		AccountID: root.Get("account_id").String(),
	}, true
}
