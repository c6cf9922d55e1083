package oauth

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// OAuth2Config maps a provider onto golang.org/x/oauth2's configuration type.
func (p ProviderConfig) OAuth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID: p.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.AuthorizeURL,
			TokenURL:  p.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: p.RedirectURI,
		Scopes:      strings.Fields(p.Scope),
	}
}

// BuildAuthURL composes the authorization URL for one login attempt. The
// originator override wins over the provider default when non-empty.
func BuildAuthURL(provider ProviderConfig, pkceCodes *PKCECodes, state, originator string) (string, error) {
	if pkceCodes == nil {
		return "", fmt.Errorf("PKCE codes are required")
	}
	u, err := url.Parse(provider.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorize url: %w", err)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("authorize url must be absolute, got %q", provider.AuthorizeURL)
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", pkceCodes.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", CodeChallengeMethod),
	}
	for _, param := range provider.ExtraAuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(param.Key, param.Value))
	}
	if originator == "" {
		originator = provider.DefaultOriginator
	}
	if originator != "" {
		opts = append(opts, oauth2.SetAuthURLParam("originator", originator))
	}

	return provider.OAuth2Config().AuthCodeURL(state, opts...), nil
}
