// Package oauth implements the provider-agnostic pieces of the OAuth2
// authorization-code flow with PKCE: code generation, authorization URL
// construction, the loopback callback server, token endpoint calls and
// best-effort identity extraction from access tokens.
package oauth

import (
	"fmt"
	"net"
	"net/url"
	"time"
)

// AuthParam is a provider-specific query parameter appended to the authorization URL.
type AuthParam struct {
	Key   string
	Value string
}

// ProviderConfig describes a single OAuth provider. Values are treated as
// immutable once constructed and are passed explicitly to every operation.
type ProviderConfig struct {
	// ClientID is the public OAuth client identifier.
	ClientID string
	// AuthorizeURL is the provider's authorization endpoint.
	AuthorizeURL string
	// TokenURL is the provider's token endpoint.
	TokenURL string
	// RedirectURI is the loopback redirect. Its host and port are bound by the callback server.
	RedirectURI string
	// Scope is the space separated scope string sent on authorization.
	Scope string
	// ClaimPath is the sequence of literal JSON keys leading to the object holding AccountIDClaim.
	ClaimPath []string
	// AccountIDClaim is the key read from the object at ClaimPath.
	AccountIDClaim string
	// DefaultOriginator is sent as the originator parameter when no override is given.
	DefaultOriginator string
	// TokenFileName is the cache file name under the store directory.
	TokenFileName string
	// ExtraAuthParams are appended to the authorization URL in order.
	ExtraAuthParams []AuthParam
}

// Validate checks that all endpoint URLs are absolute and that the redirect URI
// names an explicit port for the callback server.
func (p ProviderConfig) Validate() error {
	if p.ClientID == "" {
		return fmt.Errorf("provider: client id is required")
	}
	for name, raw := range map[string]string{
		"authorize url": p.AuthorizeURL,
		"token url":     p.TokenURL,
		"redirect uri":  p.RedirectURI,
	} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("provider: invalid %s: %w", name, err)
		}
		if !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("provider: %s must be absolute, got %q", name, raw)
		}
	}
	if _, _, err := p.RedirectAddr(); err != nil {
		return err
	}
	if p.TokenFileName == "" {
		return fmt.Errorf("provider: token file name is required")
	}
	return nil
}

// RedirectAddr returns the host:port the callback server binds and the path it serves.
func (p ProviderConfig) RedirectAddr() (addr string, path string, err error) {
	u, err := url.Parse(p.RedirectURI)
	if err != nil {
		return "", "", fmt.Errorf("provider: invalid redirect uri: %w", err)
	}
	if u.Port() == "" {
		return "", "", fmt.Errorf("provider: redirect uri %q has no port", p.RedirectURI)
	}
	path = u.Path
	if path == "" {
		path = "/"
	}
	return net.JoinHostPort(u.Hostname(), u.Port()), path, nil
}

// PKCECodes holds the verifier and S256 challenge for one authorization request.
type PKCECodes struct {
	// CodeVerifier is the secret sent on code exchange.
	CodeVerifier string `json:"code_verifier"`
	// CodeChallenge is base64url(SHA-256(CodeVerifier)) without padding.
	CodeChallenge string `json:"code_challenge"`
}

// Token is the cached credential pair. A refresh always produces a new value.
type Token struct {
	Access    string
	Refresh   string
	Expires   int64 // epoch milliseconds
	AccountID string
}

// ExpiresAt returns the absolute expiry as a time.Time.
func (t *Token) ExpiresAt() time.Time {
	return time.UnixMilli(t.Expires)
}

// TTL returns the time left before expiry relative to now. It is negative once expired.
func (t *Token) TTL(now time.Time) time.Duration {
	return time.Duration(t.Expires-now.UnixMilli()) * time.Millisecond
}

// Valid reports whether the token has not yet expired at now.
func (t *Token) Valid(now time.Time) bool {
	return t != nil && t.Expires > now.UnixMilli()
}
