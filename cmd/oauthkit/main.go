// Package main provides the oauthkit command, which signs in through the
// browser, caches the resulting OAuth token and hands out fresh access tokens.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/router-for-me/oauth-cli-kit/internal/buildinfo"
	"github.com/router-for-me/oauth-cli-kit/internal/cmd"
	"github.com/router-for-me/oauth-cli-kit/internal/logging"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	opts := cmd.DefaultOptions()
	if DefaultConfigPath != "" {
		opts.ConfigPath = DefaultConfigPath
	}
	code := cmd.Execute(ctx, opts)
	stop()
	os.Exit(code)
}
