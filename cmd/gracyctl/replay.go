package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guilatrova/gracy/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Inspect a sqlite replay store",
}

var replayListCmd = &cobra.Command{
	Use:   "list <sqlite-path>",
	Short: "List every recorded exchange in a sqlite replay store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := replay.OpenSQLiteStore(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		summaries, err := store.List(context.Background())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(summaries) == 0 {
			fmt.Fprintln(out, "no exchanges recorded")
			return nil
		}

		for _, s := range summaries {
			fmt.Fprintf(out, "%s  %-6s %-4d %s  %s\n", s.RecordedAt.Format("2006-01-02T15:04:05"), s.Method, s.Status, s.URL, s.Fingerprint)
		}
		return nil
	},
}

func init() {
	replayCmd.AddCommand(replayListCmd)
}
