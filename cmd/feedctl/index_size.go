package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const gigabyte = 1 << 30

func NewIndexSizeCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index-size",
		Short: "Show or set the local index size limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			index, err := a.openIndex()
			if err != nil {
				return err
			}
			defer index.Close()

			if cmd.Flags().Changed("limit") {
				limit, _ := cmd.Flags().GetFloat64("limit")
				if limit <= 0 {
					return fmt.Errorf("limit must be positive")
				}
				if err := index.SetSizeLimit(cmd.Context(), int64(limit*gigabyte)); err != nil {
					return err
				}
			}

			size, err := index.Size()
			if err != nil {
				return err
			}
			limit, ok, err := index.SizeLimit(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Size: %.2fGB\n", float64(size)/gigabyte)
			if ok {
				fmt.Fprintf(out, "Limit: %.2fGB\n", float64(limit)/gigabyte)
			} else {
				fmt.Fprintln(out, "Limit: none")
			}
			return nil
		},
	}

	cmd.Flags().Float64("limit", 0, "Size limit in GB")
	return cmd
}
