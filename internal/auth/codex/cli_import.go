package codex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
	"github.com/tidwall/gjson"
)

// ImportedTokenLifetime is assumed for imported tokens, counted from the file's mtime.
const ImportedTokenLifetime = time.Hour

// CLIAuthPath returns $CODEX_HOME/auth.json, or ~/.codex/auth.json when CODEX_HOME is unset.
func CLIAuthPath() (string, error) {
	if codexHome := strings.TrimSpace(os.Getenv("CODEX_HOME")); codexHome != "" {
		return filepath.Join(codexHome, "auth.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".codex", "auth.json"), nil
}

// CLIImporter reads the token pair stored by the Codex CLI so an existing
// login can be reused without a new browser round-trip.
type CLIImporter struct {
	// Path overrides the auth file location. Empty resolves CLIAuthPath on each import.
	Path string
	// Provider supplies the claim path used when the file has no account id.
	Provider oauth.ProviderConfig
}

// NewCLIImporter creates an importer for provider using the default auth file location.
func NewCLIImporter(provider oauth.ProviderConfig) *CLIImporter {
	return &CLIImporter{Provider: provider}
}

// Name identifies the import source in logs.
func (i *CLIImporter) Name() string {
	return "codex-cli"
}

// Import returns the token found in the Codex CLI auth file. Errors wrapping
// os.ErrNotExist mean there is nothing to import.
func (i *CLIImporter) Import(_ context.Context) (*oauth.Token, error) {
	path := i.Path
	if path == "" {
		resolved, err := CLIAuthPath()
		if err != nil {
			return nil, err
		}
		path = resolved
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("codex cli auth file %s is not valid JSON", path)
	}

	tokens := gjson.GetBytes(data, "tokens")
	access := tokens.Get("access_token").String()
	refresh := tokens.Get("refresh_token").String()
	if access == "" || refresh == "" {
		return nil, fmt.Errorf("codex cli auth file %s has no token pair", path)
	}

	accountID := tokens.Get("account_id").String()
	if accountID == "" {
		accountID = oauth.DecodeAccountID(access, i.Provider.ClaimPath, i.Provider.AccountIDClaim)
	}

	return &oauth.Token{
		Access:    access,
		Refresh:   refresh,
		Expires:   info.ModTime().Add(ImportedTokenLifetime).UnixMilli(),
		AccountID: accountID,
	}, nil
}
