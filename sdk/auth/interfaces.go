// Package auth is the public entry point of the kit: the interactive login
// flow, the file-backed token cache and the refresh orchestration that keeps
// it valid across concurrent processes.
package auth

import (
	"context"
	"time"

	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
)

// Token and ProviderConfig are re-exported so embedders need no internal imports.
type (
	Token          = oauth.Token
	ProviderConfig = oauth.ProviderConfig
	OAuthError     = oauth.OAuthError
)

var (
	ErrCredentialsNotFound      = oauth.ErrCredentialsNotFound
	ErrAuthorizationCodeMissing = oauth.ErrAuthorizationCodeMissing
	ErrInvalidState             = oauth.ErrInvalidState
	ErrCodeExchangeFailed       = oauth.ErrCodeExchangeFailed
	ErrTokenRefreshFailed       = oauth.ErrTokenRefreshFailed
	ErrMalformedTokenResponse   = oauth.ErrMalformedTokenResponse
	ErrPortInUse                = oauth.ErrPortInUse
)

// NoticeKind classifies user-facing messages emitted during login.
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	// NoticeURL carries the authorization URL alone.
	NoticeURL
	NoticeWarn
	NoticeProgress
)

// LoginOptions captures the knobs of one interactive login.
type LoginOptions struct {
	// NoBrowser skips the browser launch and prints tunnel instructions instead.
	NoBrowser bool
	// CopyURL copies the authorization URL to the clipboard.
	CopyURL bool
	// Originator overrides the provider's default originator tag.
	Originator string
	// CallbackTimeout bounds the wait for the browser callback. Defaults to 120s.
	CallbackTimeout time.Duration
	// Prompt reads one line of manual input. Defaults to reading stdin.
	Prompt func(prompt string) (string, error)
	// Notify renders user-facing messages. Defaults to plain stdout.
	Notify func(kind NoticeKind, msg string)
	// OpenBrowser replaces the system browser launcher.
	OpenBrowser func(url string) error
	// Store receives the token. Defaults to a store for provider.TokenFileName in the
	// default data dir that imports through DefaultImporters.
	Store *FileTokenStore
	// Client performs the code exchange. Defaults to oauth.NewTokenClient().
	Client *oauth.TokenClient
}

// TokenImporter restores a token from a foreign source when the cache file is absent.
type TokenImporter interface {
	Name() string
	// Import returns the foreign token. Errors wrapping os.ErrNotExist mean nothing to import.
	Import(ctx context.Context) (*oauth.Token, error)
}
