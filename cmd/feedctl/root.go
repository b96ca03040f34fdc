package main

import (
	"github.com/spf13/cobra"
)

func NewRootCmd(version string, load loader) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "feedctl",
		Short:         "Operate skyfeed feed generators",
		Long:          `Manage feed definitions, the feed cache and the local full-text index of a skyfeed deployment.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	rootCmd.AddCommand(
		NewMigrateCmd(load),
		NewApplyCmd(load),
		NewDeleteCmd(load),
		NewInvalidateCmd(load),
		NewExplainCmd(load),
		NewIndexSizeCmd(load),
		NewQueriesCmd(load),
	)

	return rootCmd
}
