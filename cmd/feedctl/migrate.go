package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database and local index schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.database.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database migrated")

			if !a.cfg.LocalIndexEnabled() {
				return nil
			}
			index, err := a.openIndex()
			if err != nil {
				return err
			}
			defer index.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Local index migrated at %s\n", index.Path())
			return nil
		},
	}
}
