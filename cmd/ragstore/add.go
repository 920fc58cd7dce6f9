package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

func newAddCmd(deps dependencies, flags *globalFlags) *cobra.Command {
	var (
		meta []string
		id   string
	)

	cmd := &cobra.Command{
		Use:   "add <text>...",
		Short: "Save one document per argument",
		Long: `Save each argument as a document and print its ID.

Documents get a fresh random ID unless --id is given, in which case exactly
one text is allowed and any document already stored under that ID is replaced.

Examples:
  ragstore add "The cat purrs" "Dogs bark"
  ragstore add "Cars drive" --meta kind=note --meta priority=2
  ragstore add "Updated text" --id note-1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id != "" && len(args) > 1 {
				return errors.New("--id takes exactly one text")
			}
			pairs, err := parsePairs(meta)
			if err != nil {
				return err
			}
			metadata := vectorstore.NewMetadataBuilder().WithMap(pairs).Build()

			a, err := openApp(cmd.Context(), deps, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := a.commandContext(cmd.Context())

			if id != "" {
				if err := a.storage.SaveWithID(ctx, id, args[0], metadata); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				logging.FromContext(ctx).Debug(ctx, "document saved", zap.String("id", id))
				return nil
			}

			for _, text := range args {
				saved, err := a.storage.Save(ctx, text, metadata)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), saved)
			}
			logging.FromContext(ctx).Debug(ctx, "documents saved", zap.Int("count", len(args)))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&meta, "meta", nil, "metadata key=value, repeatable")
	cmd.Flags().StringVar(&id, "id", "", "document ID to create or replace")
	return cmd
}
