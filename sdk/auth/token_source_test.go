package auth

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
)

func TestTokenSourceAdaptsCachedToken(t *testing.T) {
	endpoint := newTokenEndpoint(t, func(int32, url.Values) (int, string) {
		return http.StatusInternalServerError, "unexpected"
	})
	st := newTestStore(t, t.TempDir())
	cached := &oauth.Token{Access: "ts-a", Refresh: "ts-r", Expires: expiresIn(time.Hour), AccountID: "acct-7"}
	saveToken(t, st, cached)

	ts := TokenSource(context.Background(), testProvider(endpoint.URL, 1455), &TokenOptions{Store: st, Client: endpoint.client()})
	token, err := ts.Token()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.AccessToken != "ts-a" || token.RefreshToken != "ts-r" || token.TokenType != "Bearer" {
		t.Fatalf("unexpected token: %+v", token)
	}
	if !token.Expiry.Equal(time.UnixMilli(cached.Expires)) {
		t.Fatalf("expiry = %s", token.Expiry)
	}
	if got, _ := token.Extra("account_id").(string); got != "acct-7" {
		t.Fatalf("account_id extra = %q", got)
	}
}

func TestTokenSourceWithoutCredentials(t *testing.T) {
	st := newTestStore(t, t.TempDir())
	ts := TokenSource(context.Background(), testProvider("http://127.0.0.1:1/token", 1455), &TokenOptions{Store: st})
	if _, err := ts.Token(); err == nil {
		t.Fatal("expected credentials error")
	}
}

func TestCachedTokenSourceReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	st := newTestStore(t, dir)
	saveToken(t, st, &oauth.Token{Access: "first", Refresh: "r", Expires: expiresIn(time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cts, err := NewCachedTokenSource(ctx, testProvider("http://127.0.0.1:1/token", 1455), &TokenOptions{Store: st})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = cts.Close() }()

	token, err := cts.Token()
	if err != nil || token.AccessToken != "first" {
		t.Fatalf("Token() = %+v, %v", token, err)
	}

	saveToken(t, newTestStore(t, dir), &oauth.Token{Access: "second", Refresh: "r2", Expires: expiresIn(time.Hour)})

	deadline := time.Now().Add(3 * time.Second)
	for {
		token, err = cts.Token()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token.AccessToken == "second" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("cached token never reloaded, still %q", token.AccessToken)
		}
		time.Sleep(25 * time.Millisecond)
	}
}
