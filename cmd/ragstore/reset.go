package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd(deps dependencies, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete every document in the collection",
		Long: `Delete the collection and recreate it empty. A collection that does not
exist yet is created.

Examples:
  ragstore reset
  ragstore reset --collection scratch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), deps, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := a.commandContext(cmd.Context())

			if err := a.storage.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "collection %s reset\n", a.storage.CollectionName())
			return nil
		},
	}
}
