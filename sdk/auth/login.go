package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
	"github.com/router-for-me/oauth-cli-kit/internal/browser"
	"github.com/router-for-me/oauth-cli-kit/internal/logging"
	"github.com/router-for-me/oauth-cli-kit/internal/metrics"
	"github.com/router-for-me/oauth-cli-kit/internal/misc"
	"github.com/router-for-me/oauth-cli-kit/internal/util"
	log "github.com/sirupsen/logrus"
)

// DefaultCallbackTimeout bounds the wait for the browser callback.
const DefaultCallbackTimeout = 120 * time.Second

const (
	racePromptText     = "Paste the authorization code (or full redirect URL), or wait for the browser callback:"
	fallbackPromptText = "Please paste the callback URL or authorization code:"
)

const (
	sourceCallback = "callback"
	sourceManual   = "manual"
)

var errBrowserUnavailable = errors.New("no browser available")

// codeCandidate is what one input source produced.
type codeCandidate struct {
	source           string
	code             string
	state            string
	errCode          string
	errorDescription string
}

// Login runs one interactive authorization-code login with PKCE and stores the
// resulting token. The browser callback and manual input race; whichever yields
// a code first wins. A callback listener that cannot bind is not fatal: the
// flow continues with manual input only.
func Login(ctx context.Context, provider oauth.ProviderConfig, opts *LoginOptions) (*oauth.Token, error) {
	if err := provider.Validate(); err != nil {
		return nil, err
	}
	o, err := normalizeLoginOptions(provider, opts)
	if err != nil {
		return nil, err
	}
	ctx = logging.EnsureFlowID(ctx)

	token, err := login(ctx, provider, o)
	if err != nil {
		metrics.Logins.WithLabelValues("failure").Inc()
		logging.Entry(ctx).WithField("error", err).Debug("login failed")
		return nil, err
	}
	metrics.Logins.WithLabelValues("success").Inc()
	return token, nil
}

func normalizeLoginOptions(provider oauth.ProviderConfig, opts *LoginOptions) (LoginOptions, error) {
	var o LoginOptions
	if opts != nil {
		o = *opts
	}
	if o.CallbackTimeout <= 0 {
		o.CallbackTimeout = DefaultCallbackTimeout
	}
	if o.Prompt == nil {
		o.Prompt = stdinPrompt()
	}
	if o.Notify == nil {
		o.Notify = func(_ NoticeKind, msg string) { fmt.Println(msg) }
	}
	if o.OpenBrowser == nil {
		o.OpenBrowser = openSystemBrowser
	}
	if o.Client == nil {
		o.Client = oauth.NewTokenClient()
	}
	if o.Store == nil {
		st, err := NewFileTokenStore(
			WithFileName(provider.TokenFileName),
			WithImporters(DefaultImporters(provider)...),
		)
		if err != nil {
			return LoginOptions{}, err
		}
		o.Store = st
	}
	return o, nil
}

func login(ctx context.Context, provider oauth.ProviderConfig, o LoginOptions) (*oauth.Token, error) {
	entry := logging.Entry(ctx)

	pkceCodes, err := oauth.GeneratePKCECodes()
	if err != nil {
		return nil, fmt.Errorf("pkce generation failed: %w", err)
	}
	state, err := misc.GenerateRandomState()
	if err != nil {
		return nil, fmt.Errorf("state generation failed: %w", err)
	}
	authURL, err := oauth.BuildAuthURL(provider, pkceCodes, state, o.Originator)
	if err != nil {
		return nil, fmt.Errorf("authorization url generation failed: %w", err)
	}

	server := startCallbackServer(ctx, provider, o)
	if server != nil {
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if errStop := server.Stop(stopCtx); errStop != nil {
				entry.Warnf("oauth callback server stop error: %v", errStop)
			}
		}()
	}

	presentAuthURL(provider, o, authURL)

	candidate, err := awaitCode(ctx, server, o)
	if err != nil {
		return nil, err
	}
	if candidate == nil || (candidate.code == "" && candidate.errCode == "") {
		return nil, ErrAuthorizationCodeMissing
	}
	if candidate.state != "" && candidate.state != state {
		return nil, oauth.NewAuthenticationError(ErrInvalidState, fmt.Errorf("state mismatch from %s", candidate.source))
	}
	if candidate.errCode != "" {
		return nil, oauth.NewOAuthError(candidate.errCode, candidate.errorDescription, http.StatusBadRequest)
	}
	if candidate.code == "" {
		return nil, ErrAuthorizationCodeMissing
	}
	metrics.LoginCodeSource.WithLabelValues(candidate.source).Inc()
	entry.WithField("source", candidate.source).Debug("authorization code received; exchanging for tokens")

	o.Notify(NoticeProgress, "Exchanging authorization code for tokens...")
	token, err := o.Client.Exchange(ctx, provider, candidate.code, pkceCodes.CodeVerifier)
	if err != nil {
		return nil, err
	}
	if err = o.Store.Save(ctx, token); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	o.Notify(NoticeInfo, fmt.Sprintf("Authentication successful. Token saved to %s", o.Store.Path()))
	return token, nil
}

// startCallbackServer returns nil when the listener cannot bind.
func startCallbackServer(ctx context.Context, provider oauth.ProviderConfig, o LoginOptions) *oauth.OAuthServer {
	entry := logging.Entry(ctx)
	server, err := oauth.NewOAuthServer(provider.RedirectURI)
	if err == nil {
		err = server.Start()
	}
	if err == nil {
		return server
	}
	if errors.Is(err, ErrPortInUse) {
		o.Notify(NoticeWarn, "The callback port is already in use; paste the redirect URL manually after authorizing.")
	} else {
		o.Notify(NoticeWarn, "Could not start the local callback server; paste the redirect URL manually after authorizing.")
	}
	entry.Warnf("oauth callback server unavailable: %v", err)
	return nil
}

func presentAuthURL(provider oauth.ProviderConfig, o LoginOptions, authURL string) {
	if o.CopyURL {
		if err := clipboard.WriteAll(authURL); err != nil {
			log.Debugf("failed to copy authorization url: %v", err)
			o.Notify(NoticeWarn, "Could not copy the URL to the clipboard.")
		} else {
			o.Notify(NoticeInfo, "The authorization URL was copied to the clipboard.")
		}
	}

	openErr := errBrowserUnavailable
	if !o.NoBrowser {
		o.Notify(NoticeProgress, "Opening browser for authentication")
		openErr = o.OpenBrowser(authURL)
		if openErr != nil {
			log.Warnf("failed to open browser automatically: %v", openErr)
		}
	}
	if openErr != nil {
		if port := redirectPort(provider); port > 0 {
			o.Notify(NoticeInfo, util.SSHTunnelInstructions(port, util.GetIPAddress()))
		}
		o.Notify(NoticeInfo, "Visit the following URL to continue authentication:")
	} else {
		o.Notify(NoticeInfo, "If the browser did not open, visit:")
	}
	o.Notify(NoticeURL, authURL)
}

func openSystemBrowser(url string) error {
	if !browser.IsAvailable() {
		return errBrowserUnavailable
	}
	return browser.OpenURL(url)
}

func redirectPort(provider oauth.ProviderConfig) int {
	addr, _, err := provider.RedirectAddr()
	if err != nil {
		return 0
	}
	_, portText, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(portText)
	return port
}

// awaitCode races the callback listener against manual input. Without a
// listener, after the callback timeout, or once the manual input holds no
// code, the blocking fallback prompt is the only source.
func awaitCode(ctx context.Context, server *oauth.OAuthServer, o LoginOptions) (*codeCandidate, error) {
	entry := logging.Entry(ctx)
	reader := newManualReader(o.Prompt)

	if server != nil {
		timer := time.NewTimer(o.CallbackTimeout)
		defer timer.Stop()
		callbackCh := server.Results()
		o.Notify(NoticeProgress, "Waiting for the browser callback...")
		reader.start(racePromptText)

	race:
		for {
			select {
			case result := <-callbackCh:
				if result == nil {
					continue
				}
				return &codeCandidate{
					source:           sourceCallback,
					code:             result.Code,
					state:            result.State,
					errCode:          result.Error,
					errorDescription: result.ErrorDescription,
				}, nil
			case <-timer.C:
				entry.Warnf("timed out after %s waiting for the browser callback", o.CallbackTimeout)
				o.Notify(NoticeWarn, "Timed out waiting for the browser callback.")
				break race
			case in := <-reader.results:
				reader.pending = false
				if in.err != nil {
					entry.Debugf("manual input unavailable: %v", in.err)
					continue
				}
				if candidate := parseManualInput(in.text); candidate != nil {
					return candidate, nil
				}
				entry.Debug("manual input held no authorization code")
				break race
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if reader.pending {
		o.Notify(NoticeInfo, fallbackPromptText)
	} else {
		reader.start(fallbackPromptText)
	}
	in, err := reader.wait(ctx)
	if err != nil {
		return nil, err
	}
	if in.err != nil {
		return nil, oauth.NewAuthenticationError(ErrAuthorizationCodeMissing, in.err)
	}
	return parseManualInput(in.text), nil
}

func parseManualInput(text string) *codeCandidate {
	parsed := misc.ParseOAuthCallback(text)
	if parsed == nil {
		return nil
	}
	return &codeCandidate{
		source:           sourceManual,
		code:             parsed.Code,
		state:            parsed.State,
		errCode:          parsed.Error,
		errorDescription: parsed.ErrorDescription,
	}
}

type manualInput struct {
	text string
	err  error
}

// manualReader runs at most one blocking prompt at a time. A read abandoned
// by the race stays pending and is consumed by the next wait, so the same
// input stream is never read by two goroutines.
type manualReader struct {
	prompt  func(string) (string, error)
	results chan manualInput
	pending bool
}

func newManualReader(prompt func(string) (string, error)) *manualReader {
	return &manualReader{prompt: prompt, results: make(chan manualInput, 1)}
}

func (r *manualReader) start(text string) {
	if r.pending {
		return
	}
	r.pending = true
	go func() {
		line, err := r.prompt(text)
		r.results <- manualInput{text: line, err: err}
	}()
}

func (r *manualReader) wait(ctx context.Context) (manualInput, error) {
	select {
	case in := <-r.results:
		r.pending = false
		return in, nil
	case <-ctx.Done():
		return manualInput{}, ctx.Err()
	}
}

// stdinPrompt reads whole lines from stdin through one shared buffer.
func stdinPrompt() func(string) (string, error) {
	reader := bufio.NewReader(os.Stdin)
	return func(prompt string) (string, error) {
		fmt.Print(prompt + " ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}
