package cmd

import (
	"github.com/spf13/cobra"
)

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the cached token and its mirrored copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			st, err := rt.tokenStore(cmd.Context())
			if err != nil {
				return err
			}
			if err = st.Delete(cmd.Context()); err != nil {
				return err
			}
			rt.console.success("Logged out.")
			return nil
		},
	}
}
