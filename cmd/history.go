package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/gnssproc/internal/ledger"
	"github.com/sells-group/gnssproc/internal/model"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded station/day outcomes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cfg.Ledger.Driver == "none" {
			return eris.New("history: ledger.driver is none, nothing is recorded")
		}
		led, err := ledger.Open(ctx, cfg.Ledger)
		if err != nil {
			return err
		}
		defer led.Close() //nolint:errcheck

		station, _ := cmd.Flags().GetString("station")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := led.List(ctx, ledger.Filter{
			Station: strings.ToUpper(strings.TrimSpace(station)),
			Status:  model.DayStatus(status),
			Limit:   limit,
		})
		if err != nil {
			return eris.Wrap(err, "history")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No history found.")
			return nil
		}

		formatHistory(os.Stdout, entries)
		return nil
	},
}

func formatHistory(out io.Writer, entries []ledger.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATION\tDATE\tSTATUS\tTIER\tDURATION\tARTIFACT")
	_, _ = fmt.Fprintln(w, "-------\t----\t------\t----\t--------\t--------")

	for _, e := range entries {
		detail := e.Artifact
		if detail == "" {
			detail = e.Reason
		}
		if len(detail) > 60 {
			detail = "..." + detail[len(detail)-57:]
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Station,
			e.Date,
			e.Status,
			e.Tier,
			e.FinishedAt.Sub(e.StartedAt).Round(time.Second),
			detail,
		)
	}
	_ = w.Flush()
}

func init() {
	historyCmd.Flags().String("station", "", "filter by station code")
	historyCmd.Flags().String("status", "", "filter by status (success, computed, no_raw, unavailable, errored)")
	historyCmd.Flags().Int("limit", 50, "max number of entries to display")
	rootCmd.AddCommand(historyCmd)
}
