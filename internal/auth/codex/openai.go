// Package codex holds the built-in OpenAI Codex provider definition and the
// importer for credentials written by the Codex CLI.
package codex

import (
	"fmt"

	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
	"github.com/router-for-me/oauth-cli-kit/internal/config"
)

// OAuth configuration constants for OpenAI Codex
const (
	AuthURL           = "https://auth.openai.com/oauth/authorize"
	TokenURL          = "https://auth.openai.com/oauth/token"
	ClientID          = "app_EMoamEEZ73f0CkXaXp7hrann"
	RedirectURI       = "http://localhost:1455/auth/callback"
	Scope             = "openid profile email offline_access"
	JWTClaimPath      = "https://api.openai.com/auth"
	AccountIDClaim    = "chatgpt_account_id"
	DefaultOriginator = "nanobot"
	TokenFileName     = "codex.json"
)

// DefaultProvider returns the Codex provider configuration.
func DefaultProvider() oauth.ProviderConfig {
	return oauth.ProviderConfig{
		ClientID:          ClientID,
		AuthorizeURL:      AuthURL,
		TokenURL:          TokenURL,
		RedirectURI:       RedirectURI,
		Scope:             Scope,
		ClaimPath:         []string{JWTClaimPath},
		AccountIDClaim:    AccountIDClaim,
		DefaultOriginator: DefaultOriginator,
		TokenFileName:     TokenFileName,
		ExtraAuthParams: []oauth.AuthParam{
			{Key: "id_token_add_organizations", Value: "true"},
			{Key: "codex_cli_simplified_flow", Value: "true"},
		},
	}
}

// ProviderFromConfig applies the overrides in cfg to DefaultProvider and validates the result.
func ProviderFromConfig(cfg *config.Config) (oauth.ProviderConfig, error) {
	provider := DefaultProvider()
	if cfg == nil {
		return provider, nil
	}
	o := cfg.Provider
	if o.ClientID != "" {
		provider.ClientID = o.ClientID
	}
	if o.AuthorizeURL != "" {
		provider.AuthorizeURL = o.AuthorizeURL
	}
	if o.TokenURL != "" {
		provider.TokenURL = o.TokenURL
	}
	if o.RedirectURI != "" {
		provider.RedirectURI = o.RedirectURI
	}
	if o.Scope != "" {
		provider.Scope = o.Scope
	}
	if o.Originator != "" {
		provider.DefaultOriginator = o.Originator
	}
	if o.TokenFileName != "" {
		provider.TokenFileName = o.TokenFileName
	}
	if err := provider.Validate(); err != nil {
		return oauth.ProviderConfig{}, fmt.Errorf("codex provider: %w", err)
	}
	return provider, nil
}
