package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skyfeed/skyfeed/internal/definitions"
)

func NewApplyCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply -f <file|dir>",
		Short: "Create or update feeds from YAML definitions",
		Long:  `Apply one definition file, or every *.yaml and *.yml file of a directory. Feeds whose matching criteria change have their cache invalidated.`,
		Args:  cobra.NoArgs,
		RunE:  makeApplyRunner(load),
	}

	cmd.Flags().StringP("file", "f", "", "Definition file or directory")
	cmd.Flags().String("did", "", "Publisher DID for definitions without one (defaults to publisher_did)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func makeApplyRunner(load loader) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("file")
		did, _ := cmd.Flags().GetString("did")

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("read definitions: %w", err)
		}

		a, err := load(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if did == "" {
			did = a.cfg.Server.PublisherDID
		}

		if info.IsDir() {
			applied, err := a.registry.ApplyDir(cmd.Context(), path, did)
			if err != nil {
				return fmt.Errorf("apply %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d definitions from %s\n", applied, path)
			return nil
		}

		feed, err := definitions.LoadFile(path, did)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		invalidated, err := a.registry.Apply(cmd.Context(), feed)
		if err != nil {
			return fmt.Errorf("apply %s: %w", path, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Applied %s\n", feed.Identifier)
		if invalidated {
			fmt.Fprintln(cmd.OutOrStdout(), "Cache invalidated")
		}
		return nil
	}
}
