package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewInvalidateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <identifier>",
		Short: "Drop the cached working set of a feed",
		Long:  `Remove the persisted cache snapshot of a feed, and its Redis mirror when configured. Running servers drop their in-process copy on the next request for the feed, which then rebuilds it.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.cache.Invalidate(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("invalidate cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %s\n", args[0])
			return nil
		},
	}
}
