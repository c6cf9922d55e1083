package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
	"github.com/router-for-me/oauth-cli-kit/internal/store"
	"github.com/tidwall/gjson"
	"github.com/zalando/go-keyring"
)

func fileKeys(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var keys []string
	gjson.ParseBytes(data).ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	sort.Strings(keys)
	return keys
}

func TestFileTokenStoreRoundTrip(t *testing.T) {
	st := newTestStore(t, t.TempDir())
	ctx := context.Background()

	saveToken(t, st, &oauth.Token{Access: "a", Refresh: "r", Expires: 1234})
	if got := strings.Join(fileKeys(t, st.Path()), ","); got != "access,expires,refresh" {
		t.Fatalf("keys without account id = %s", got)
	}
	token, ok := st.Load(ctx)
	if !ok || token.Access != "a" || token.Refresh != "r" || token.Expires != 1234 || token.AccountID != "" {
		t.Fatalf("Load() = %+v, %v", token, ok)
	}

	saveToken(t, st, &oauth.Token{Access: "a2", Refresh: "r2", Expires: 5678, AccountID: "acct"})
	if got := strings.Join(fileKeys(t, st.Path()), ","); got != "access,account_id,expires,refresh" {
		t.Fatalf("keys with account id = %s", got)
	}
	token, ok = st.Load(ctx)
	if !ok || token.AccountID != "acct" || token.Expires != 5678 {
		t.Fatalf("Load() = %+v, %v", token, ok)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(st.Path())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Fatalf("file mode = %o, want 600", perm)
		}
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(st.Path()), "*.tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestFileTokenStoreRejectsInvalidContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "{not json"},
		{name: "array", content: `[1,2]`},
		{name: "missing refresh", content: `{"access":"a","expires":1}`},
		{name: "missing expires", content: `{"access":"a","refresh":"r"}`},
		{name: "string expires", content: `{"access":"a","refresh":"r","expires":"soon"}`},
		{name: "empty access", content: `{"access":"","refresh":"r","expires":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			importer := &fakeImporter{name: "never", token: &oauth.Token{Access: "x", Refresh: "y", Expires: 1}}
			st := newTestStore(t, t.TempDir(), WithImporters(importer))
			if err := os.MkdirAll(filepath.Dir(st.Path()), 0o700); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := os.WriteFile(st.Path(), []byte(tt.content), 0o600); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if token, ok := st.Load(context.Background()); ok {
				t.Fatalf("Load() = %+v, want no token", token)
			}
			if importer.calls != 0 {
				t.Fatal("importers must only run when the file is absent")
			}
		})
	}
}

func TestResolveTokenPath(t *testing.T) {
	t.Setenv(TokenPathEnv, "")
	dir := t.TempDir()

	got, err := ResolveTokenPath(dir, "codex.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := filepath.Join(dir, "auth", "codex.json"); got != want {
		t.Fatalf("ResolveTokenPath() = %q, want %q", got, want)
	}
	if _, err = ResolveTokenPath(dir, ""); err == nil {
		t.Fatal("expected error for empty file name")
	}

	override := filepath.Join(t.TempDir(), "elsewhere", "token.json")
	t.Setenv(TokenPathEnv, override)
	got, err = ResolveTokenPath(dir, "codex.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != override {
		t.Fatalf("override path = %q, want %q", got, override)
	}
}

type fakeImporter struct {
	name  string
	token *oauth.Token
	err   error
	calls int
}

func (f *fakeImporter) Name() string { return f.name }

func (f *fakeImporter) Import(context.Context) (*oauth.Token, error) {
	f.calls++
	return f.token, f.err
}

func TestFileTokenStoreImportsOnce(t *testing.T) {
	missing := &fakeImporter{name: "missing", err: os.ErrNotExist}
	broken := &fakeImporter{name: "broken", err: errors.New("bad file")}
	found := &fakeImporter{name: "found", token: &oauth.Token{Access: "ia", Refresh: "ir", Expires: 42, AccountID: "acct"}}
	unused := &fakeImporter{name: "unused", token: &oauth.Token{Access: "x", Refresh: "y", Expires: 1}}
	st := newTestStore(t, t.TempDir(), WithImporters(missing, broken, found, unused))

	token, ok := st.Load(context.Background())
	if !ok || token.Access != "ia" || token.AccountID != "acct" {
		t.Fatalf("Load() = %+v, %v", token, ok)
	}
	if unused.calls != 0 {
		t.Fatal("importers after the first hit must not run")
	}
	if _, err := os.Stat(st.Path()); err != nil {
		t.Fatalf("imported token was not written: %v", err)
	}

	token, ok = st.Load(context.Background())
	if !ok || token.Access != "ia" || found.calls != 1 {
		t.Fatalf("second Load() = %+v, %v, importer calls %d", token, ok, found.calls)
	}
}

type memoryMirror struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryMirror() *memoryMirror {
	return &memoryMirror{objects: make(map[string][]byte)}
}

func (m *memoryMirror) Name() string { return "memory" }

func (m *memoryMirror) Push(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), payload...)
	return nil
}

func (m *memoryMirror) Pull(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return data, nil
}

func (m *memoryMirror) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func TestFileTokenStoreMirror(t *testing.T) {
	mirror := newMemoryMirror()
	ctx := context.Background()

	first := newTestStore(t, t.TempDir(), WithMirror(mirror))
	saveToken(t, first, &oauth.Token{Access: "ma", Refresh: "mr", Expires: 99})
	if _, err := mirror.Pull(ctx, "codex.json"); err != nil {
		t.Fatalf("save did not push to mirror: %v", err)
	}

	second := newTestStore(t, t.TempDir(), WithMirror(mirror))
	token, ok := second.Load(ctx)
	if !ok || token.Access != "ma" || token.Expires != 99 {
		t.Fatalf("restore from mirror = %+v, %v", token, ok)
	}
	if _, err := os.Stat(second.Path()); err != nil {
		t.Fatalf("restored token was not written locally: %v", err)
	}

	if err := second.Delete(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(second.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file still present after delete: %v", err)
	}
	if _, err := mirror.Pull(ctx, "codex.json"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("mirror copy still present: %v", err)
	}
	if err := second.Delete(ctx); err != nil {
		t.Fatalf("deleting twice: %v", err)
	}
}

func TestFileTokenStoreKeyringMirror(t *testing.T) {
	keyring.MockInit()
	mirror := store.NewKeyringMirror("oauthkit-test")

	saveToken(t, newTestStore(t, t.TempDir(), WithMirror(mirror)), &oauth.Token{Access: "ka", Refresh: "kr", Expires: 7, AccountID: "acct"})

	token, ok := newTestStore(t, t.TempDir(), WithMirror(mirror)).Load(context.Background())
	if !ok || token.Access != "ka" || token.AccountID != "acct" {
		t.Fatalf("restore from keyring = %+v, %v", token, ok)
	}
}
