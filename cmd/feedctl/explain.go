package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skyfeed/skyfeed/internal/models"
	"github.com/skyfeed/skyfeed/internal/query"
)

func NewExplainCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <identifier>",
		Short: "Print the queries a feed compiles to",
		Long:  `Print the local index and warehouse queries of a stored feed definition without running them.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			feed, err := a.registry.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load feed: %w", err)
			}
			if feed == nil {
				return fmt.Errorf("unknown feed %q", args[0])
			}

			plan := query.Compile(feed.Definition)
			attr := query.Attribution{FeedIdentifier: feed.Identifier, Identity: models.Anonymous()}

			out := cmd.OutOrStdout()
			if plan.Empty() {
				fmt.Fprintln(out, "Definition matches nothing; only atUris are served")
			}
			fmt.Fprintf(out, "-- local index\n%s\n\n", a.builder.Local(plan, attr).Text())
			fmt.Fprintf(out, "-- warehouse\n%s\n", a.builder.Warehouse(plan, attr, nil).Text())
			return nil
		},
	}
}
