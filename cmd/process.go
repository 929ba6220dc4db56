package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gnssproc/internal/guard"
	"github.com/sells-group/gnssproc/internal/ledger"
	"github.com/sells-group/gnssproc/internal/metrics"
	"github.com/sells-group/gnssproc/internal/model"
	"github.com/sells-group/gnssproc/internal/pipeline"
	"github.com/sells-group/gnssproc/internal/preflight"
	"github.com/sells-group/gnssproc/internal/tools"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process stations over a range of days",
	Long: `Runs every selected station through observation assembly, orbit tier
scheduling and result finalization for each selected day. Days whose primary
result already exists are skipped unless --force is given.`,
	Example: `  gnssproc process --days 7
  gnssproc process --dates 2024-01-15,2024-01-16 --tier final --stations ABCD
  gnssproc process --lock --fullog`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rc, err := runConfigFromFlags(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		if rc.Lock {
			lock, err := guard.Acquire(cfg.Paths.LockFile)
			if err != nil {
				return err
			}
			defer func() {
				if err := lock.Release(); err != nil {
					zap.L().Warn("lock release failed", zap.Error(err))
				}
			}()
		}

		if err := preflight.CheckDiskSpace(cfg.Paths.ResultRoot, cfg.Preflight.MinFreePercent); err != nil {
			return err
		}

		stations, err := pipeline.DiscoverStations(cfg.Stations, rc.Stations)
		if err != nil {
			return err
		}

		led, err := ledger.Open(ctx, cfg.Ledger)
		if err != nil {
			return err
		}
		defer led.Close() //nolint:errcheck

		rec, err := metrics.New()
		if err != nil {
			return err
		}

		orch, err := pipeline.New(cfg, rc, pipeline.Deps{
			Runner:  tools.NewExecRunner(),
			Ledger:  led,
			Metrics: rec,
		})
		if err != nil {
			return err
		}

		sum, err := orch.Run(ctx, stations)
		printSummary(sum)
		if err != nil {
			return err
		}
		if n := sum.Counts[model.DayStatusErrored]; n > 0 {
			zap.L().Warn("some days errored; see the .error.log files next to their results", zap.Int("errored", n))
		}
		return nil
	},
}

func runConfigFromFlags(cmd *cobra.Command) (pipeline.RunConfig, error) {
	days, _ := cmd.Flags().GetInt("days")
	dateValues, _ := cmd.Flags().GetStringSlice("dates")
	tierFlag, _ := cmd.Flags().GetString("tier")
	force, _ := cmd.Flags().GetBool("force")
	debug, _ := cmd.Flags().GetBool("debug")
	fullog, _ := cmd.Flags().GetBool("fullog")
	lock, _ := cmd.Flags().GetBool("lock")
	stations, _ := cmd.Flags().GetStringSlice("stations")

	if days < 1 {
		return pipeline.RunConfig{}, eris.Errorf("--days must be at least 1, got %d", days)
	}
	mode, err := model.ParseTierMode(tierFlag)
	if err != nil {
		return pipeline.RunConfig{}, err
	}
	dates, err := pipeline.ParseDates(dateValues)
	if err != nil {
		return pipeline.RunConfig{}, err
	}

	return pipeline.RunConfig{
		Days:     days,
		Dates:    dates,
		TierMode: mode,
		Force:    force,
		Debug:    debug,
		FullLog:  fullog,
		Lock:     lock,
		Stations: stations,
	}, nil
}

func printSummary(sum pipeline.Summary) {
	_, _ = fmt.Fprintf(os.Stdout, "run %s: %d station-days in %s\n", sum.RunID, sum.Total(), sum.Duration.Round(time.Second))
	for _, s := range []model.DayStatus{
		model.DayStatusSuccess,
		model.DayStatusComputed,
		model.DayStatusNoRaw,
		model.DayStatusUnavailable,
		model.DayStatusErrored,
	} {
		if n := sum.Counts[s]; n > 0 {
			_, _ = fmt.Fprintf(os.Stdout, "  %-12s %d\n", s, n)
		}
	}
}

func registerProcessFlags(c *cobra.Command) {
	c.Flags().Int("days", 1, "number of days ending today to process")
	c.Flags().StringSlice("dates", nil, "explicit comma-separated YYYY-MM-DD dates (overrides --days)")
	c.Flags().String("tier", "all", "orbit tiers to use: all, final, rapid, ultra")
	c.Flags().Bool("force", false, "recompute days that already have a result")
	c.Flags().Bool("debug", false, "keep the working directory and the engine tree file")
	c.Flags().Bool("fullog", false, "archive each day's working directory next to its result")
	c.Flags().Bool("lock", false, "refuse to start while another run holds the lock file")
	c.Flags().StringSlice("stations", nil, "restrict to these comma-separated station codes")
}

func init() {
	registerProcessFlags(processCmd)
	rootCmd.AddCommand(processCmd)
}
