package oauth

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuthError is an error reported by the provider on the redirect, such as access_denied.
type OAuthError struct {
	// Code is the OAuth error code.
	Code string `json:"error"`
	// Description is a human-readable description of the error.
	Description string `json:"error_description,omitempty"`
	// StatusCode is the HTTP status code associated with the error.
	StatusCode int `json:"-"`
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("OAuth error %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("OAuth error: %s", e.Code)
}

// NewOAuthError creates a new OAuth error with the specified code, description, and status code.
func NewOAuthError(code, description string, statusCode int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		StatusCode:  statusCode,
	}
}

// TokenResponseError carries a non-200 reply from the token endpoint.
type TokenResponseError struct {
	StatusCode int
	Body       string
}

func (e *TokenResponseError) Error() string {
	return fmt.Sprintf("token endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// AuthenticationError represents authentication-related errors.
type AuthenticationError struct {
	// Type is the stable machine-readable kind of the error.
	Type string `json:"type"`
	// Message is a human-readable message describing the error.
	Message string `json:"message"`
	// Code is the HTTP status or process exit code associated with the error.
	Code int `json:"code"`
	// Cause is the underlying error that caused this authentication error.
	Cause error `json:"-"`
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// Is matches any AuthenticationError of the same Type, so errors.Is works
// against the base values below.
func (e *AuthenticationError) Is(target error) bool {
	t, ok := target.(*AuthenticationError)
	return ok && t.Type == e.Type
}

// Common authentication error types.
var (
	// ErrCredentialsNotFound means no token has ever been stored. Run login first.
	ErrCredentialsNotFound = &AuthenticationError{
		Type:    "credentials_not_found",
		Message: "OAuth credentials not found, run login first",
		Code:    http.StatusUnauthorized,
	}

	// ErrAuthorizationCodeMissing means neither the callback nor manual input produced a code.
	ErrAuthorizationCodeMissing = &AuthenticationError{
		Type:    "authorization_code_missing",
		Message: "authorization code not found",
		Code:    http.StatusBadRequest,
	}

	// ErrInvalidState represents an error for invalid OAuth state parameter.
	ErrInvalidState = &AuthenticationError{
		Type:    "invalid_state",
		Message: "OAuth state parameter is invalid",
		Code:    http.StatusBadRequest,
	}

	// ErrCodeExchangeFailed represents an error when exchanging authorization code for tokens fails.
	ErrCodeExchangeFailed = &AuthenticationError{
		Type:    "code_exchange_failed",
		Message: "Failed to exchange authorization code for tokens",
		Code:    http.StatusBadRequest,
	}

	// ErrTokenRefreshFailed represents a failed refresh_token grant.
	ErrTokenRefreshFailed = &AuthenticationError{
		Type:    "token_refresh_failed",
		Message: "Failed to refresh access token",
		Code:    http.StatusUnauthorized,
	}

	// ErrMalformedTokenResponse means the token endpoint replied 200 without the required fields.
	ErrMalformedTokenResponse = &AuthenticationError{
		Type:    "malformed_token_response",
		Message: "Token response is missing required fields",
		Code:    http.StatusBadGateway,
	}

	// ErrServerStartFailed represents an error when starting the OAuth callback server fails.
	ErrServerStartFailed = &AuthenticationError{
		Type:    "server_start_failed",
		Message: "Failed to start OAuth callback server",
		Code:    http.StatusInternalServerError,
	}

	// ErrPortInUse represents an error when the OAuth callback port is already in use.
	ErrPortInUse = &AuthenticationError{
		Type:    "port_in_use",
		Message: "OAuth callback port is already in use",
		Code:    13, // Special exit code for port-in-use
	}
)

// NewAuthenticationError creates a new authentication error with a cause based on a base error.
func NewAuthenticationError(baseErr *AuthenticationError, cause error) *AuthenticationError {
	return &AuthenticationError{
		Type:    baseErr.Type,
		Message: baseErr.Message,
		Code:    baseErr.Code,
		Cause:   cause,
	}
}

// IsAuthenticationError checks if an error is an authentication error.
func IsAuthenticationError(err error) bool {
	var authenticationError *AuthenticationError
	return errors.As(err, &authenticationError)
}

// IsOAuthError checks if an error is an OAuth error.
func IsOAuthError(err error) bool {
	var oAuthError *OAuthError
	return errors.As(err, &oAuthError)
}

// GetUserFriendlyMessage returns a user-friendly error message based on the error type.
func GetUserFriendlyMessage(err error) string {
	if oauthErr, ok := errors.AsType[*OAuthError](err); ok {
		switch oauthErr.Code {
		case "access_denied":
			return "Authentication was cancelled or denied."
		case "invalid_request":
			return "Invalid authentication request. Please try again."
		case "server_error":
			return "Authentication server error. Please try again later."
		default:
			if oauthErr.Description != "" {
				return fmt.Sprintf("Authentication failed: %s", oauthErr.Description)
			}
			return fmt.Sprintf("Authentication failed: %s", oauthErr.Code)
		}
	}
	authErr, ok := errors.AsType[*AuthenticationError](err)
	if !ok {
		return "An unexpected error occurred. Please try again."
	}
	switch authErr.Type {
	case ErrCredentialsNotFound.Type:
		return "No stored credentials. Run the login command first."
	case ErrAuthorizationCodeMissing.Type:
		return "No authorization code was received. Please try again."
	case ErrInvalidState.Type:
		return "The authorization response did not match this login attempt. Please try again."
	case ErrCodeExchangeFailed.Type, ErrMalformedTokenResponse.Type:
		return "Could not obtain tokens from the provider. Please try again."
	case ErrTokenRefreshFailed.Type:
		if resp, okResp := errors.AsType[*TokenResponseError](err); okResp && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "Your session could not be refreshed. Please log in again."
		}
		return "Could not refresh your session. Check your connection and try again."
	case ErrPortInUse.Type:
		return "The callback port is already in use. Paste the redirect URL manually to continue."
	default:
		return "Authentication failed. Please try again."
	}
}
