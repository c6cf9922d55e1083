package cmd

import (
	"fmt"

	"github.com/router-for-me/oauth-cli-kit/internal/buildinfo"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "oauthkit %s (commit %s, built %s)\n",
				buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
			return err
		},
	}
}
