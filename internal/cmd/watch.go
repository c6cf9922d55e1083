package cmd

import (
	"context"
	"time"

	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
	"github.com/router-for-me/oauth-cli-kit/internal/watcher"
	sdkauth "github.com/router-for-me/oauth-cli-kit/sdk/auth"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var (
		interval time.Duration
		minTTL   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the cached token fresh until interrupted",
		Long: "Refreshes the cached token whenever it comes within --min-ttl of expiry and reports " +
			"changes made to the cache file by other processes. Metrics are served when metrics-addr is set.",
		Args: cobra.NoArgs,
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

			stopMetrics, err := startMetricsServer(ctx, rt.cfg.MetricsAddr)
			if err != nil {
				return err
			}
			defer stopMetrics()

			w, err := watcher.New(opts.Store.Path(), func(event watcher.Event) {
				switch event.Action {
				case watcher.ActionDelete:
					rt.console.notify(sdkauth.NoticeWarn, "Token cache removed. Run `oauthkit login` to sign in again.")
				default:
					if token, ok := opts.Store.Load(ctx); ok {
						rt.console.notify(sdkauth.NoticeInfo, "Token cache updated; expires "+token.ExpiresAt().Local().Format(time.RFC1123))
					}
				}
			})
			if err != nil {
				return err
			}
			if err = w.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = w.Stop() }()

			rt.console.notify(sdkauth.NoticeProgress, "Watching "+opts.Store.Path())
			return watchLoop(ctx, interval, func(ctx context.Context) {
				token, errGet := sdkauth.GetToken(ctx, rt.provider, opts)
				if errGet != nil {
					log.Warnf("token refresh failed: %s", oauth.GetUserFriendlyMessage(errGet))
					return
				}
				log.Debugf("token valid for %s", token.TTL(time.Now()).Truncate(time.Second))
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "How often to check the token")
	cmd.Flags().DurationVar(&minTTL, "min-ttl", 5*time.Minute, "Refresh when the token expires within this duration")
	return cmd
}

// watchLoop runs check immediately and then every interval until ctx is done.
func watchLoop(ctx context.Context, interval time.Duration, check func(context.Context)) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		check(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
