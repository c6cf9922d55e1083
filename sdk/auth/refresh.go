package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
	"github.com/router-for-me/oauth-cli-kit/internal/logging"
	"github.com/router-for-me/oauth-cli-kit/internal/metrics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultMinTTL is the remaining lifetime below which GetToken refreshes.
const DefaultMinTTL = 60 * time.Second

// TokenOptions configures GetToken. The zero value is usable.
type TokenOptions struct {
	// Store defaults to a store for provider.TokenFileName in the default data dir
	// that imports through DefaultImporters.
	Store *FileTokenStore
	// Client defaults to oauth.NewTokenClient().
	Client *oauth.TokenClient
	// MinTTL defaults to DefaultMinTTL.
	MinTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// refreshGroup coalesces refreshes of the same cache file within one process.
var refreshGroup singleflight.Group

func (o *TokenOptions) withDefaults(provider oauth.ProviderConfig) (TokenOptions, error) {
	var resolved TokenOptions
	if o != nil {
		resolved = *o
	}
	if resolved.Store == nil {
		st, err := NewFileTokenStore(
			WithFileName(provider.TokenFileName),
			WithImporters(DefaultImporters(provider)...),
		)
		if err != nil {
			return TokenOptions{}, err
		}
		resolved.Store = st
	}
	if resolved.Client == nil {
		resolved.Client = oauth.NewTokenClient()
	}
	if resolved.MinTTL <= 0 {
		resolved.MinTTL = DefaultMinTTL
	}
	if resolved.Now == nil {
		resolved.Now = time.Now
	}
	return resolved, nil
}

// GetToken returns a token with more than MinTTL left, refreshing it when needed.
// Refreshes are serialized across processes by an advisory lock on a sibling
// "<cache>.lock" file and the cache is re-read under the lock, so concurrent
// callers perform at most one network refresh. A missing cache is
// ErrCredentialsNotFound and is never recovered by refresh.
func GetToken(ctx context.Context, provider oauth.ProviderConfig, opts *TokenOptions) (*oauth.Token, error) {
	o, err := opts.withDefaults(provider)
	if err != nil {
		return nil, err
	}
	ctx = logging.EnsureFlowID(ctx)

	token, ok := o.Store.Load(ctx)
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	if token.TTL(o.Now()) > o.MinTTL {
		metrics.CacheHits.Inc()
		return token, nil
	}

	result, err, shared := refreshGroup.Do(o.Store.Path(), func() (any, error) {
		return refreshLocked(ctx, provider, o, token)
	})
	if err != nil {
		return nil, err
	}
	refreshed := *result.(*oauth.Token)
	if shared {
		log.WithField("path", o.Store.Path()).Debug("joined in-flight token refresh")
	}
	return &refreshed, nil
}

// refreshLocked runs the lock-guarded re-read, refresh and save sequence.
// loaded is the token read before locking; it is refreshed when the cache
// cannot be re-read under the lock.
func refreshLocked(ctx context.Context, provider oauth.ProviderConfig, o TokenOptions, loaded *oauth.Token) (*oauth.Token, error) {
	entry := logging.Entry(ctx).WithField("path", o.Store.Path())

	lock, err := acquireFileLock(ctx, o.Store.Path()+".lock")
	if err != nil {
		return nil, fmt.Errorf("acquire token lock: %w", err)
	}
	defer func() {
		if errRelease := lock.Release(); errRelease != nil {
			entry.Warnf("failed to release token lock: %v", errRelease)
		}
	}()
	if !lock.Exclusive() {
		entry = entry.WithField("lock", "none")
	}

	current, ok := o.Store.Load(ctx)
	if !ok {
		if loaded == nil {
			return nil, ErrCredentialsNotFound
		}
		entry.Debug("token cache unreadable under lock; refreshing the token loaded earlier")
		current = loaded
	}
	if current.TTL(o.Now()) > o.MinTTL {
		metrics.TokenRefreshes.WithLabelValues(metrics.OutcomeReused).Inc()
		entry.WithField("outcome", metrics.OutcomeReused).Debug("token refreshed by another process")
		return current, nil
	}

	refreshed, errRefresh := o.Client.Refresh(ctx, provider, current.Refresh)
	if errRefresh != nil {
		if latest, okLatest := o.Store.Load(ctx); okLatest && latest.Valid(o.Now()) {
			metrics.TokenRefreshes.WithLabelValues(metrics.OutcomeRescued).Inc()
			entry.WithFields(log.Fields{"outcome": metrics.OutcomeRescued, "error": errRefresh}).Warn("refresh failed; using cached token that is still valid")
			return latest, nil
		}
		metrics.TokenRefreshes.WithLabelValues(metrics.OutcomeFailed).Inc()
		entry.WithFields(log.Fields{"outcome": metrics.OutcomeFailed, "error": errRefresh}).Warn("token refresh failed")
		return nil, errRefresh
	}

	if refreshed.AccountID == "" {
		refreshed.AccountID = current.AccountID
	}
	if err = o.Store.Save(ctx, refreshed); err != nil {
		metrics.TokenRefreshes.WithLabelValues(metrics.OutcomeFailed).Inc()
		return nil, fmt.Errorf("save refreshed token: %w", err)
	}
	metrics.TokenRefreshes.WithLabelValues(metrics.OutcomeRefreshed).Inc()
	entry.WithField("outcome", metrics.OutcomeRefreshed).Debugf("token refreshed, expires %s", refreshed.ExpiresAt().Format(time.RFC3339))
	return refreshed, nil
}
