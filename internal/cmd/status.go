package cmd

import (
	"time"

	sdkauth "github.com/router-for-me/oauth-cli-kit/sdk/auth"
	"github.com/spf13/cobra"
)

// tokenState classifies a cached token against the refresh threshold.
func tokenState(ttl, minTTL time.Duration) string {
	switch {
	case ttl <= 0:
		return "expired"
	case ttl <= minTTL:
		return "expiring"
	default:
		return "fresh"
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cached token without refreshing it",
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
			rt.console.field("Cache", st.Path())

			token, ok := st.Load(ctx)
			if !ok {
				rt.console.notify(sdkauth.NoticeWarn, "Not logged in. Run `oauthkit login` first.")
				return sdkauth.ErrCredentialsNotFound
			}
			ttl := token.TTL(time.Now())
			if token.AccountID != "" {
				rt.console.field("Account", token.AccountID)
			}
			rt.console.field("Expires", token.ExpiresAt().Local().Format(time.RFC1123))
			rt.console.field("State", tokenState(ttl, sdkauth.DefaultMinTTL))
			if ttl > 0 {
				rt.console.field("Remaining", ttl.Truncate(time.Second).String())
			}
			return nil
		},
	}
}
