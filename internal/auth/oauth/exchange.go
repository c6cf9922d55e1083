package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// DefaultRequestTimeout bounds every token endpoint call.
const DefaultRequestTimeout = 30 * time.Second

// TokenClient performs authorization-code and refresh-token grants against
// a provider's token endpoint.
type TokenClient struct {
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

// TokenClientOption configures a TokenClient.
type TokenClientOption func(*TokenClient)

// WithHTTPClient sets the client used for token requests. Proxy settings live on the client.
func WithHTTPClient(client *http.Client) TokenClientOption {
	return func(c *TokenClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the time source used to compute absolute expiry.
func WithClock(now func() time.Time) TokenClientOption {
	return func(c *TokenClient) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(timeout time.Duration) TokenClientOption {
	return func(c *TokenClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewTokenClient creates a TokenClient. Without options it uses a plain http.Client.
func NewTokenClient(opts ...TokenClientOption) *TokenClient {
	c := &TokenClient{
		httpClient: &http.Client{},
		timeout:    DefaultRequestTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exchange trades an authorization code and PKCE verifier for a token.
func (c *TokenClient) Exchange(ctx context.Context, provider ProviderConfig, code, codeVerifier string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {provider.ClientID},
		"code":          {code},
		"code_verifier": {codeVerifier},
		"redirect_uri":  {provider.RedirectURI},
	}
	return c.requestToken(ctx, provider, data, ErrCodeExchangeFailed)
}

// Refresh obtains a new token from a refresh token. It is never retried here.
func (c *TokenClient) Refresh(ctx context.Context, provider ProviderConfig, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, NewAuthenticationError(ErrTokenRefreshFailed, fmt.Errorf("refresh token is required"))
	}
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {provider.ClientID},
	}
	return c.requestToken(ctx, provider, data, ErrTokenRefreshFailed)
}

func (c *TokenClient) requestToken(ctx context.Context, provider ProviderConfig, data url.Values, failure *AuthenticationError) (*Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, NewAuthenticationError(failure, fmt.Errorf("failed to create token request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewAuthenticationError(failure, fmt.Errorf("token request failed: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewAuthenticationError(failure, fmt.Errorf("failed to read token response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		log.Debugf("token endpoint %s returned status %d", provider.TokenURL, resp.StatusCode)
		return nil, NewAuthenticationError(failure, &TokenResponseError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
		})
	}

	return c.parseTokenResponse(provider, body)
}

// parseTokenResponse requires access_token, refresh_token and expires_in.
func (c *TokenClient) parseTokenResponse(provider ProviderConfig, body []byte) (*Token, error) {
	if !gjson.ValidBytes(body) {
		return nil, NewAuthenticationError(ErrMalformedTokenResponse, fmt.Errorf("response is not valid JSON"))
	}
	fields := gjson.GetManyBytes(body, "access_token", "refresh_token", "expires_in")
	access, refresh, expiresIn := fields[0], fields[1], fields[2]

	var missing []string
	if access.Type != gjson.String || access.String() == "" {
		missing = append(missing, "access_token")
	}
	if refresh.Type != gjson.String || refresh.String() == "" {
		missing = append(missing, "refresh_token")
	}
	lifetime, okLifetime := expiresInSeconds(expiresIn)
	if !okLifetime {
		missing = append(missing, "expires_in")
	}
	if len(missing) > 0 {
		return nil, NewAuthenticationError(ErrMalformedTokenResponse, fmt.Errorf("missing or invalid %s", strings.Join(missing, ", ")))
	}

	accessToken := access.String()
	return &Token{
		Access:    accessToken,
		Refresh:   refresh.String(),
		Expires:   c.now().UnixMilli() + lifetime*1000,
		AccountID: DecodeAccountID(accessToken, provider.ClaimPath, provider.AccountIDClaim),
	}, nil
}

// expiresInSeconds accepts a JSON number or a numeric string.
func expiresInSeconds(value gjson.Result) (int64, bool) {
	switch value.Type {
	case gjson.Number:
		return value.Int(), true
	case gjson.String:
		seconds, err := strconv.ParseInt(strings.TrimSpace(value.Str), 10, 64)
		return seconds, err == nil
	default:
		return 0, false
	}
}
