package cmd

import (
	"fmt"
	"time"

	sdkauth "github.com/router-for-me/oauth-cli-kit/sdk/auth"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
)

func newTokenCommand() *cobra.Command {
	var (
		minTTL time.Duration
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token, refreshing it when close to expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			opts, err := rt.tokenOptions(ctx, minTTL)
			if err != nil {
				return err
			}
			token, err := sdkauth.GetToken(ctx, rt.provider, opts)
			if err != nil {
				return err
			}
			if !asJSON {
				_, err = fmt.Fprintln(rt.stdout, token.Access)
				return err
			}

			out := `{}`
			out, _ = sjson.Set(out, "access_token", token.Access)
			out, _ = sjson.Set(out, "token_type", "Bearer")
			out, _ = sjson.Set(out, "expires_at", token.ExpiresAt().UTC().Format(time.RFC3339))
			if token.AccountID != "" {
				out, _ = sjson.Set(out, "account_id", token.AccountID)
			}
			_, err = fmt.Fprintln(rt.stdout, out)
			return err
		},
	}
	cmd.Flags().DurationVar(&minTTL, "min-ttl", sdkauth.DefaultMinTTL, "Refresh when the token expires within this duration")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the token with its expiry and account as JSON")
	return cmd
}
