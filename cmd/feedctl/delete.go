package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewDeleteCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <identifier>",
		Aliases: []string{"rm"},
		Short:   "Unpublish a feed and drop its cache",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.registry.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete feed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}
