package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
	"github.com/router-for-me/oauth-cli-kit/internal/logging"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestGetTokenFreshSkipsNetwork(t *testing.T) {
	endpoint := newTokenEndpoint(t, func(int32, url.Values) (int, string) {
		return http.StatusOK, tokenBody("new", "new-r", 3600)
	})
	st := newTestStore(t, t.TempDir())
	cached := &oauth.Token{Access: "cached", Refresh: "r", Expires: expiresIn(time.Hour)}
	saveToken(t, st, cached)

	token, err := GetToken(context.Background(), testProvider(endpoint.URL, 1455), &TokenOptions{Store: st, Client: endpoint.client()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.Access != "cached" || token.Expires != cached.Expires {
		t.Fatalf("GetToken() = %+v, want cached token", token)
	}
	if endpoint.calls.Load() != 0 {
		t.Fatalf("network calls = %d, want 0", endpoint.calls.Load())
	}
}

func TestGetTokenRefreshesNearExpiry(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
	}{
		{name: "below min ttl", ttl: 30 * time.Second},
		{name: "already expired", ttl: -time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint := newTokenEndpoint(t, func(_ int32, form url.Values) (int, string) {
				if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "old-r" {
					t.Errorf("unexpected refresh form: %v", form)
				}
				return http.StatusOK, tokenBody("new-a", "new-r", 3600)
			})
			st := newTestStore(t, t.TempDir())
			old := &oauth.Token{Access: "old-a", Refresh: "old-r", Expires: expiresIn(tt.ttl), AccountID: "acct-1"}
			saveToken(t, st, old)

			token, err := GetToken(context.Background(), testProvider(endpoint.URL, 1455), &TokenOptions{Store: st, Client: endpoint.client()})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if endpoint.calls.Load() != 1 {
				t.Fatalf("network calls = %d, want 1", endpoint.calls.Load())
			}
			stored, ok := st.Load(context.Background())
			if !ok {
				t.Fatal("refreshed token not stored")
			}
			if stored.Access != "new-a" || stored.Refresh != "new-r" || stored.Expires <= old.Expires {
				t.Fatalf("stored token = %+v", stored)
			}
			if token.Access != stored.Access {
				t.Fatalf("returned %+v, stored %+v", token, stored)
			}
			if stored.AccountID != "acct-1" {
				t.Fatalf("account id = %q, want previous value kept", stored.AccountID)
			}
		})
	}
}

func TestGetTokenWithoutCredentials(t *testing.T) {
	endpoint := newTokenEndpoint(t, func(int32, url.Values) (int, string) {
		return http.StatusOK, tokenBody("a", "r", 3600)
	})
	st := newTestStore(t, t.TempDir())

	_, err := GetToken(context.Background(), testProvider(endpoint.URL, 1455), &TokenOptions{Store: st, Client: endpoint.client()})
	if !errors.Is(err, ErrCredentialsNotFound) {
		t.Fatalf("error = %v, want credentials not found", err)
	}
	if endpoint.calls.Load() != 0 {
		t.Fatal("missing credentials must not trigger a refresh")
	}
}

func TestGetTokenRefreshFailure(t *testing.T) {
	t.Run("propagates when nothing valid remains", func(t *testing.T) {
		endpoint := newTokenEndpoint(t, func(int32, url.Values) (int, string) {
			return http.StatusUnauthorized, `{"error":"invalid_grant"}`
		})
		st := newTestStore(t, t.TempDir())
		saveToken(t, st, &oauth.Token{Access: "a", Refresh: "r", Expires: expiresIn(-time.Minute)})

		_, err := GetToken(context.Background(), testProvider(endpoint.URL, 1455), &TokenOptions{Store: st, Client: endpoint.client()})
		if !errors.Is(err, ErrTokenRefreshFailed) {
			t.Fatalf("error = %v, want refresh failure", err)
		}
	})

	t.Run("rescued by a concurrent writer", func(t *testing.T) {
		dir := t.TempDir()
		other := newTestStore(t, dir)
		endpoint := newTokenEndpoint(t, func(int32, url.Values) (int, string) {
			if err := other.Save(context.Background(), &oauth.Token{Access: "other", Refresh: "other-r", Expires: expiresIn(time.Hour)}); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			return http.StatusBadRequest, `{"error":"invalid_grant"}`
		})
		st := newTestStore(t, dir)
		saveToken(t, st, &oauth.Token{Access: "a", Refresh: "r", Expires: expiresIn(-time.Minute)})

		token, err := GetToken(context.Background(), testProvider(endpoint.URL, 1455), &TokenOptions{Store: st, Client: endpoint.client()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token.Access != "other" {
			t.Fatalf("GetToken() = %+v, want token written by the other process", token)
		}
	})

	t.Run("stale but unexpired token is returned", func(t *testing.T) {
		endpoint := newTokenEndpoint(t, func(int32, url.Values) (int, string) {
			return http.StatusServiceUnavailable, `busy`
		})
		st := newTestStore(t, t.TempDir())
		saveToken(t, st, &oauth.Token{Access: "stale", Refresh: "r", Expires: expiresIn(20 * time.Second)})

		token, err := GetToken(context.Background(), testProvider(endpoint.URL, 1455), &TokenOptions{Store: st, Client: endpoint.client()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token.Access != "stale" {
			t.Fatalf("GetToken() = %+v", token)
		}
	})
}

func TestConcurrentRefreshAcrossStores(t *testing.T) {
	dir := t.TempDir()
	endpoint := newTokenEndpoint(t, func(n int32, _ url.Values) (int, string) {
		time.Sleep(100 * time.Millisecond)
		return http.StatusOK, tokenBody(fmt.Sprintf("new-%d", n), "new-r", 3600)
	})
	provider := testProvider(endpoint.URL, 1455)
	saveToken(t, newTestStore(t, dir), &oauth.Token{Access: "old", Refresh: "old-r", Expires: expiresIn(-time.Minute)})

	const callers = 4
	var wg sync.WaitGroup
	results := make([]*oauth.Token, callers)
	errs := make([]error, callers)
	for i := range callers {
		st := newTestStore(t, dir)
		opts := TokenOptions{Store: st, Client: endpoint.client(), MinTTL: DefaultMinTTL, Now: time.Now}
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each store behaves like a separate process: no shared singleflight.
			results[i], errs[i] = refreshLocked(context.Background(), provider, opts, nil)
		}()
	}
	wg.Wait()

	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].TTL(time.Now()) <= DefaultMinTTL {
			t.Fatalf("caller %d got token with ttl %s", i, results[i].TTL(time.Now()))
		}
	}
	if endpoint.calls.Load() != 1 {
		t.Fatalf("network refreshes = %d, want 1", endpoint.calls.Load())
	}
}

func TestGetTokenCoalescesCallers(t *testing.T) {
	dir := t.TempDir()
	endpoint := newTokenEndpoint(t, func(int32, url.Values) (int, string) {
		time.Sleep(50 * time.Millisecond)
		return http.StatusOK, tokenBody("fresh", "fresh-r", 3600)
	})
	provider := testProvider(endpoint.URL, 1455)
	saveToken(t, newTestStore(t, dir), &oauth.Token{Access: "old", Refresh: "old-r", Expires: expiresIn(time.Second)})

	var wg sync.WaitGroup
	for range 8 {
		st := newTestStore(t, dir)
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := GetToken(context.Background(), provider, &TokenOptions{Store: st, Client: endpoint.client()})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if token.Access != "fresh" {
				t.Errorf("token = %+v", token)
			}
		}()
	}
	wg.Wait()
	if endpoint.calls.Load() != 1 {
		t.Fatalf("network refreshes = %d, want 1", endpoint.calls.Load())
	}
}

func TestGetTokenDefaultStoreImportsCodexCLI(t *testing.T) {
	codexHome := t.TempDir()
	auth := `{"tokens":{"access_token":"cli-a","refresh_token":"cli-r","account_id":"acct-cli"}}`
	if err := os.WriteFile(filepath.Join(codexHome, "auth.json"), []byte(auth), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cachePath := filepath.Join(t.TempDir(), "codex.json")
	t.Setenv("CODEX_HOME", codexHome)
	t.Setenv(TokenPathEnv, cachePath)

	token, err := GetToken(context.Background(), testProvider("http://127.0.0.1:1/token", 1455), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.Access != "cli-a" || token.Refresh != "cli-r" || token.AccountID != "acct-cli" {
		t.Fatalf("GetToken() = %+v, want imported token", token)
	}
	if _, err = os.Stat(cachePath); err != nil {
		t.Fatalf("imported token not saved to the cache: %v", err)
	}
}

func TestRefreshLockedFallsBackToLoadedToken(t *testing.T) {
	endpoint := newTokenEndpoint(t, func(_ int32, form url.Values) (int, string) {
		if form.Get("refresh_token") != "loaded-r" {
			t.Errorf("refresh_token = %q, want the token loaded before locking", form.Get("refresh_token"))
		}
		return http.StatusOK, tokenBody("after-a", "after-r", 3600)
	})
	st := newTestStore(t, t.TempDir())
	opts := TokenOptions{Store: st, Client: endpoint.client(), MinTTL: DefaultMinTTL, Now: time.Now}
	loaded := &oauth.Token{Access: "loaded-a", Refresh: "loaded-r", Expires: expiresIn(-time.Minute), AccountID: "acct-9"}

	token, err := refreshLocked(context.Background(), testProvider(endpoint.URL, 1455), opts, loaded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.Access != "after-a" || token.AccountID != "acct-9" || endpoint.calls.Load() != 1 {
		t.Fatalf("token = %+v, calls = %d", token, endpoint.calls.Load())
	}
	if stored, ok := st.Load(context.Background()); !ok || stored.Access != "after-a" {
		t.Fatalf("stored token = %+v, %v", stored, ok)
	}

	if _, err = refreshLocked(context.Background(), testProvider(endpoint.URL, 1455), TokenOptions{
		Store: newTestStore(t, t.TempDir()), Client: endpoint.client(), MinTTL: DefaultMinTTL, Now: time.Now,
	}, nil); !errors.Is(err, ErrCredentialsNotFound) {
		t.Fatalf("error = %v, want credentials not found without a loaded token", err)
	}
}

func TestGetTokenTagsRefreshLogsWithFlowID(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()
	level := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	defer log.SetLevel(level)

	endpoint := newTokenEndpoint(t, func(int32, url.Values) (int, string) {
		return http.StatusOK, tokenBody("flow-a", "flow-r", 3600)
	})
	st := newTestStore(t, t.TempDir())
	saveToken(t, st, &oauth.Token{Access: "old", Refresh: "old-r", Expires: expiresIn(-time.Minute)})

	if _, err := GetToken(context.Background(), testProvider(endpoint.URL, 1455), &TokenOptions{Store: st, Client: endpoint.client()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, entry := range hook.AllEntries() {
		if entry.Data["outcome"] == "refreshed" {
			if id, _ := entry.Data[logging.FlowIDField].(string); id == "" {
				t.Fatalf("refresh log entry has no flow id: %v", entry.Data)
			}
			return
		}
	}
	t.Fatal("no refresh log entry recorded")
}
