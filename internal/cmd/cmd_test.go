package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/router-for-me/oauth-cli-kit/internal/auth/codex"
	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
	"github.com/router-for-me/oauth-cli-kit/internal/buildinfo"
	sdkauth "github.com/router-for-me/oauth-cli-kit/sdk/auth"
	"github.com/tidwall/gjson"
)

type cliHarness struct {
	dataDir    string
	configPath string
	stdout     bytes.Buffer
	stderr     bytes.Buffer
}

func newHarness(t *testing.T) *cliHarness {
	t.Helper()
	t.Setenv(sdkauth.TokenPathEnv, "")
	h := &cliHarness{dataDir: t.TempDir()}
	h.configPath = filepath.Join(t.TempDir(), "config.yaml")
	body := "data-dir: " + h.dataDir + "\nimport-codex-cli: false\n"
	if err := os.WriteFile(h.configPath, []byte(body), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return h
}

func (h *cliHarness) run(t *testing.T, args ...string) error {
	t.Helper()
	root := NewRootCommand(Options{
		ConfigPath: h.configPath,
		Stdout:     &h.stdout,
		Stderr:     &h.stderr,
		Stdin:      strings.NewReader(""),
	})
	root.SetArgs(args)
	return root.ExecuteContext(context.WithValue(context.Background(), runtimeKey{}, mustRuntime(t, root.Context())))
}

func mustRuntime(t *testing.T, ctx context.Context) *runtimeState {
	t.Helper()
	rt, ok := ctx.Value(runtimeKey{}).(*runtimeState)
	if !ok {
		t.Fatal("root command has no runtime")
	}
	return rt
}

func (h *cliHarness) store(t *testing.T) *sdkauth.FileTokenStore {
	t.Helper()
	st, err := sdkauth.NewFileTokenStore(sdkauth.WithDataDir(h.dataDir), sdkauth.WithFileName(codex.TokenFileName))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return st
}

func (h *cliHarness) seed(t *testing.T, ttl time.Duration) {
	t.Helper()
	token := &oauth.Token{
		Access:    "cli-access",
		Refresh:   "cli-refresh",
		Expires:   time.Now().Add(ttl).UnixMilli(),
		AccountID: "acct-cli",
	}
	if err := h.store(t).Save(context.Background(), token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTokenCommandPrintsCachedToken(t *testing.T) {
	h := newHarness(t)
	h.seed(t, time.Hour)

	if err := h.run(t, "token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.TrimSpace(h.stdout.String()); got != "cli-access" {
		t.Fatalf("stdout = %q, want only the access token", got)
	}
}

func TestTokenCommandJSON(t *testing.T) {
	h := newHarness(t)
	h.seed(t, time.Hour)

	if err := h.run(t, "token", "--json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := h.stdout.String()
	if gjson.Get(out, "access_token").String() != "cli-access" ||
		gjson.Get(out, "account_id").String() != "acct-cli" ||
		gjson.Get(out, "token_type").String() != "Bearer" {
		t.Fatalf("unexpected json output: %s", out)
	}
	if _, err := time.Parse(time.RFC3339, gjson.Get(out, "expires_at").String()); err != nil {
		t.Fatalf("expires_at: %v", err)
	}
}

func TestTokenCommandWithoutCache(t *testing.T) {
	h := newHarness(t)
	err := h.run(t, "token")
	if !errors.Is(err, sdkauth.ErrCredentialsNotFound) {
		t.Fatalf("error = %v, want credentials not found", err)
	}
	if h.stdout.Len() != 0 {
		t.Fatalf("stdout = %q, want empty", h.stdout.String())
	}
}

func TestStatusCommand(t *testing.T) {
	h := newHarness(t)
	h.seed(t, 30*time.Second)

	if err := h.run(t, "status"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := h.stderr.String()
	for _, want := range []string{"acct-cli", "expiring", h.store(t).Path()} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}
	if token, ok := h.store(t).Load(context.Background()); !ok || token.Access != "cli-access" {
		t.Fatal("status must not refresh the token")
	}
}

func TestLogoutCommandRemovesCache(t *testing.T) {
	h := newHarness(t)
	h.seed(t, time.Hour)

	if err := h.run(t, "logout"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(h.store(t).Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("cache file still present: %v", err)
	}
}

func TestVersionCommandSkipsConfig(t *testing.T) {
	h := newHarness(t)
	h.configPath = filepath.Join(t.TempDir(), "missing.yaml")

	if err := h.run(t, "version", "--config", h.configPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(h.stdout.String(), buildinfo.Version) {
		t.Fatalf("stdout = %q", h.stdout.String())
	}
}

func TestExplicitMissingConfigFails(t *testing.T) {
	h := newHarness(t)
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	if err := h.run(t, "status", "--config", missing); err == nil {
		t.Fatal("expected an error for an explicit missing config file")
	}
}

func TestExecuteReturnsExitCode(t *testing.T) {
	t.Setenv(sdkauth.TokenPathEnv, filepath.Join(t.TempDir(), "absent.json"))
	var stderr bytes.Buffer
	code := Execute(context.Background(), Options{
		ConfigPath: filepath.Join(t.TempDir(), "none.yaml"),
		Stdout:     &bytes.Buffer{},
		Stderr:     &stderr,
		Stdin:      strings.NewReader(""),
	})
	// No subcommand prints help and succeeds.
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
}

func TestTokenState(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want string
	}{
		{ttl: -time.Second, want: "expired"},
		{ttl: 0, want: "expired"},
		{ttl: 30 * time.Second, want: "expiring"},
		{ttl: time.Hour, want: "fresh"},
	}
	for _, tt := range tests {
		if got := tokenState(tt.ttl, sdkauth.DefaultMinTTL); got != tt.want {
			t.Errorf("tokenState(%s) = %q, want %q", tt.ttl, got, tt.want)
		}
	}
}

func TestWatchLoopRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var checks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, 10*time.Millisecond, func(context.Context) {
			if checks.Add(1) == 3 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not stop after cancel")
	}
	if checks.Load() < 3 {
		t.Fatalf("checks = %d, want at least 3", checks.Load())
	}
}

func TestLinePromptSharesBuffer(t *testing.T) {
	var stderr bytes.Buffer
	prompt := linePrompt(newConsole(&stderr), strings.NewReader("first\n  second  \n"))
	for _, want := range []string{"first", "second"} {
		got, err := prompt("code:")
		if err != nil || got != want {
			t.Fatalf("prompt() = %q, %v, want %q", got, err, want)
		}
	}
	if _, err := prompt("code:"); err == nil {
		t.Fatal("expected EOF after input is exhausted")
	}
	if !strings.Contains(stderr.String(), "code:") {
		t.Fatalf("prompt text not rendered: %q", stderr.String())
	}
}
