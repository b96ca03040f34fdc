package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skyfeed/skyfeed/internal/models"
)

func NewQueriesCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queries <identifier>",
		Short: "Show the latest queries run for a feed",
		Long:  `List the most recent local index and warehouse queries of a feed from the query log, newest first.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.queries.Recent(cmd.Context(), args[0], limit)
			if err != nil {
				return fmt.Errorf("read query log: %w", err)
			}

			if asJSON {
				return outputQueriesJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No queries logged for %s\n", args[0])
				return nil
			}
			for _, e := range entries {
				status := "ok"
				if !e.Successful {
					status = "error: " + e.ErrorMessage
				}
				fmt.Fprintf(out, "%s  %-9s  %5dms  %-10s  %s\n", e.CreatedAt, e.Target, e.Duration, e.UserHandle, status)
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Number of entries to show")
	cmd.Flags().Bool("json", false, "Print entries as JSON, including the query text")
	return cmd
}

func outputQueriesJSON(cmd *cobra.Command, entries []models.QueryLog) error {
	data := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		data = append(data, map[string]any{
			"created_at":  e.CreatedAt,
			"target":      e.Target,
			"duration_ms": e.Duration,
			"user_did":    e.UserDID,
			"successful":  e.Successful,
			"error":       e.ErrorMessage,
			"query":       e.Query,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
