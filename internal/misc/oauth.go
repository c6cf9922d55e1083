package misc

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// GenerateRandomState generates a cryptographically secure random state parameter
// for OAuth2 flows to prevent CSRF attacks.
func GenerateRandomState() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// OAuthCallback captures the parsed OAuth callback parameters.
type OAuthCallback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParseAuthorizationInput extracts the code and state from text pasted by the user.
// Accepted shapes, in order: a redirect URL, a bare query string, "code#state"
// and a bare code. Empty or unusable input returns two empty strings.
func ParseAuthorizationInput(input string) (code, state string) {
	parsed := ParseOAuthCallback(input)
	if parsed == nil {
		return "", ""
	}
	return parsed.Code, parsed.State
}

// ParseOAuthCallback is ParseAuthorizationInput with provider errors preserved.
// It returns nil when the input carries neither a code nor an error.
func ParseOAuthCallback(input string) *OAuthCallback {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil
	}

	if strings.Contains(trimmed, "://") {
		parsedURL, err := url.Parse(trimmed)
		if err != nil || parsedURL.Host == "" {
			return nil
		}
		result := callbackFromValues(parsedURL.Query())
		if result == nil && parsedURL.Fragment != "" {
			if fragQuery, errFrag := url.ParseQuery(parsedURL.Fragment); errFrag == nil {
				result = callbackFromValues(fragQuery)
			}
		}
		return result
	}

	if strings.Contains(trimmed, "=") {
		if query, err := url.ParseQuery(strings.TrimPrefix(trimmed, "?")); err == nil {
			if result := callbackFromValues(query); result != nil {
				return result
			}
		}
	}

	if code, state, found := strings.Cut(trimmed, "#"); found {
		code = strings.TrimSpace(code)
		if code == "" {
			return nil
		}
		return &OAuthCallback{Code: code, State: strings.TrimSpace(state)}
	}

	if strings.ContainsAny(trimmed, "=& \t") {
		return nil
	}
	return &OAuthCallback{Code: trimmed}
}

func callbackFromValues(query url.Values) *OAuthCallback {
	code := strings.TrimSpace(query.Get("code"))
	errCode := strings.TrimSpace(query.Get("error"))
	errDesc := strings.TrimSpace(query.Get("error_description"))
	if errCode == "" && errDesc != "" {
		errCode = errDesc
		errDesc = ""
	}
	if code == "" && errCode == "" {
		return nil
	}
	return &OAuthCallback{
		Code:             code,
		State:            strings.TrimSpace(query.Get("state")),
		Error:            errCode,
		ErrorDescription: errDesc,
	}
}
