package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guilatrova/gracy/metrics"
	"github.com/guilatrova/gracy/replay"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics <sqlite-path>",
	Short: "Replay a sqlite store's recorded exchanges through a collector and print the aggregate report",
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

		collector := metrics.NewCollector(len(summaries))
		for _, s := range summaries {
			key := metrics.Key{Method: s.Method, Endpoint: s.URL}
			collector.Record(key, metrics.Outcome{
				Time:    s.RecordedAt,
				Status:  s.Status,
				Success: s.Status >= 200 && s.Status < 400,
			})
		}

		for key, report := range collector.Report() {
			fmt.Printf("%s %s\n", key.Method, key.Endpoint)
			fmt.Printf("  total=%d success=%d 2xx=%d 3xx=%d 4xx=%d 5xx=%d success_rate=%.2f\n",
				report.Total, report.Success, report.C2xx, report.C3xx, report.C4xx, report.C5xx, report.SuccessRate)
		}
		return nil
	},
}
