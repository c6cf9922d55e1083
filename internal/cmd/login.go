package cmd

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"

	sdkauth "github.com/router-for-me/oauth-cli-kit/sdk/auth"
	"github.com/spf13/cobra"
)

func newLoginCommand() *cobra.Command {
	var (
		noBrowser       bool
		copyURL         bool
		originator      string
		callbackTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser and cache the resulting token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := rt.tokenStore(ctx)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("callback-timeout") {
				callbackTimeout = rt.cfg.CallbackTimeout
			}

			token, err := sdkauth.Login(ctx, rt.provider, &sdkauth.LoginOptions{
				NoBrowser:       noBrowser,
				CopyURL:         copyURL,
				Originator:      originator,
				CallbackTimeout: callbackTimeout,
				Prompt:          linePrompt(rt.console, rt.stdin),
				Notify:          rt.console.notify,
				Store:           st,
				Client:          rt.tokenClient(),
			})
			if err != nil {
				return err
			}

			rt.console.success("Authentication successful.")
			if token.AccountID != "" {
				rt.console.field("Account", token.AccountID)
			}
			rt.console.field("Expires", token.ExpiresAt().Local().Format(time.RFC1123))
			rt.console.field("Saved to", st.Path())
			return nil
		},
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Do not open a browser; print the URL and SSH tunnel hints")
	cmd.Flags().BoolVar(&copyURL, "copy-url", false, "Copy the authorization URL to the clipboard")
	cmd.Flags().StringVar(&originator, "originator", "", "Override the originator sent with the authorization request")
	cmd.Flags().DurationVar(&callbackTimeout, "callback-timeout", sdkauth.DefaultCallbackTimeout, "How long to wait for the browser callback before asking for manual input")
	return cmd
}

// linePrompt reads trimmed lines from in through one shared buffer, so a read
// abandoned by one prompt is not lost to the next.
func linePrompt(c *console, in io.Reader) func(string) (string, error) {
	var mu sync.Mutex
	reader := bufio.NewReader(in)
	return func(text string) (string, error) {
		c.prompt(text)
		mu.Lock()
		defer mu.Unlock()
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}
