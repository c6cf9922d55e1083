// Package cmd implements the oauthkit command line: login, token, status,
// logout, watch and version.
package cmd

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/router-for-me/oauth-cli-kit/internal/auth/codex"
	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
	"github.com/router-for-me/oauth-cli-kit/internal/config"
	"github.com/router-for-me/oauth-cli-kit/internal/logging"
	"github.com/router-for-me/oauth-cli-kit/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Options wires the command tree to its streams.
type Options struct {
	ConfigPath string
	// Stdout receives machine-readable output such as the access token.
	Stdout io.Writer
	// Stderr receives styled notices.
	Stderr io.Writer
	Stdin  io.Reader
}

// DefaultOptions uses the process streams and ./config.yaml when present.
func DefaultOptions() Options {
	return Options{
		ConfigPath: "config.yaml",
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Stdin:      os.Stdin,
	}
}

type runtimeState struct {
	configPath string
	cfg        *config.Config
	provider   oauth.ProviderConfig
	stdout     io.Writer
	stdin      io.Reader
	console    *console
}

type runtimeKey struct{}

// NewRootCommand builds the oauthkit command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	rt := &runtimeState{
		configPath: opts.ConfigPath,
		stdout:     opts.Stdout,
		stdin:      opts.Stdin,
		console:    newConsole(opts.Stderr),
	}

	root := &cobra.Command{
		Use:           "oauthkit",
		Short:         "OAuth login and token cache for command-line tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return rt.load(!cmd.Flags().Changed("config"))
		},
	}
	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.SetIn(opts.Stdin)
	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		newLoginCommand(),
		newTokenCommand(),
		newStatusCommand(),
		newLogoutCommand(),
		newWatchCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, opts Options) int {
	root := NewRootCommand(opts)
	rt, _ := root.Context().Value(runtimeKey{}).(*runtimeState)
	if err := root.ExecuteContext(context.WithValue(ctx, runtimeKey{}, rt)); err != nil {
		if rt != nil {
			rt.console.failure(err)
		}
		return 1
	}
	return 0
}

// load reads .env, the config file and the environment, then applies logging
// settings and resolves the provider.
func (rt *runtimeState) load(optional bool) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debugf("failed to load .env: %v", err)
	}
	cfg, err := config.LoadConfigOptional(rt.configPath, optional)
	if err != nil {
		return err
	}
	if err = logging.ConfigureLogOutput(cfg); err != nil {
		return err
	}
	util.SetLogLevel(cfg)

	provider, err := codex.ProviderFromConfig(cfg)
	if err != nil {
		return err
	}
	rt.cfg = cfg
	rt.provider = provider
	return nil
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}
