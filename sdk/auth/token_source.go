package auth

import (
	"context"
	"sync"

	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
	"github.com/router-for-me/oauth-cli-kit/internal/watcher"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// TokenSource adapts GetToken to oauth2.TokenSource. Every call goes through
// the cache file, so other processes' refreshes are picked up.
func TokenSource(ctx context.Context, provider oauth.ProviderConfig, opts *TokenOptions) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, provider: provider, opts: opts}
}

type tokenSource struct {
	ctx      context.Context
	provider oauth.ProviderConfig
	opts     *TokenOptions
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	token, err := GetToken(s.ctx, s.provider, s.opts)
	if err != nil {
		return nil, err
	}
	return toOAuth2Token(token), nil
}

func toOAuth2Token(token *oauth.Token) *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  token.Access,
		TokenType:    "Bearer",
		RefreshToken: token.Refresh,
		Expiry:       token.ExpiresAt(),
	}
	if token.AccountID != "" {
		t = t.WithExtra(map[string]any{"account_id": token.AccountID})
	}
	return t
}

// CachedTokenSource keeps the last token in memory for long-lived processes and
// drops it when the cache file changes on disk.
type CachedTokenSource struct {
	base    oauth2.TokenSource
	opts    TokenOptions
	watcher *watcher.Watcher

	mu     sync.Mutex
	cached *oauth2.Token
}

// NewCachedTokenSource starts watching the store's cache file. Close stops the watcher.
func NewCachedTokenSource(ctx context.Context, provider oauth.ProviderConfig, opts *TokenOptions) (*CachedTokenSource, error) {
	resolved, err := opts.withDefaults(provider)
	if err != nil {
		return nil, err
	}
	c := &CachedTokenSource{
		base: TokenSource(ctx, provider, &resolved),
		opts: resolved,
	}
	w, err := watcher.New(resolved.Store.Path(), func(event watcher.Event) {
		log.WithField("path", event.Path).Debugf("token cache %s; dropping in-memory token", event.Action)
		c.Invalidate()
	})
	if err != nil {
		return nil, err
	}
	if err = w.Start(ctx); err != nil {
		_ = w.Stop()
		return nil, err
	}
	c.watcher = w
	return c, nil
}

// Token returns the in-memory token while it has more than MinTTL left.
func (c *CachedTokenSource) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil && c.cached.Expiry.Sub(c.opts.Now()) > c.opts.MinTTL {
		return c.cached, nil
	}
	token, err := c.base.Token()
	if err != nil {
		return nil, err
	}
	c.cached = token
	return token, nil
}

// Invalidate forgets the in-memory token.
func (c *CachedTokenSource) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// Close stops watching the cache file.
func (c *CachedTokenSource) Close() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.Stop()
}
