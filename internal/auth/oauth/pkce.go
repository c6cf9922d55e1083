package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// CodeChallengeMethod is the only PKCE method this package emits.
const CodeChallengeMethod = "S256"

var rawURLEncoding = base64.URLEncoding.WithPadding(base64.NoPadding)

// GeneratePKCECodes generates a new pair of PKCE codes as described in RFC 7636.
func GeneratePKCECodes() (*PKCECodes, error) {
	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	return &PKCECodes{
		CodeVerifier:  codeVerifier,
		CodeChallenge: CodeChallenge(codeVerifier),
	}, nil
}

// generateCodeVerifier returns 96 random bytes encoded as 128 URL-safe characters.
func generateCodeVerifier() (string, error) {
	bytes := make([]byte, 96)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return rawURLEncoding.EncodeToString(bytes), nil
}

// CodeChallenge derives the S256 challenge for a verifier.
func CodeChallenge(codeVerifier string) string {
	hash := sha256.Sum256([]byte(codeVerifier))
	return rawURLEncoding.EncodeToString(hash[:])
}
