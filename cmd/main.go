package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tejusbharadwaj/pvwatch/internal/history"
	"github.com/tejusbharadwaj/pvwatch/internal/ingest"
	"github.com/tejusbharadwaj/pvwatch/internal/scheduler"
)

var cfgFile string

// Command pvwatch monitors a photovoltaic system's CSV telemetry file on an
// FTP server and keeps a time series of its readings.
//
// The service supports:
//   - Change detection through the file's modification time (MDTM)
//   - Archiving every retrieved revision as pv_<token>.csv
//   - SQLite (default) or PostgreSQL storage
//   - Historical queries over HTTP and a gRPC health endpoint
//   - Prometheus metrics
//
// Usage:
//
//	pvwatch [command] [flags]
//
// The commands are:
//
//	run     poll continuously and serve the query API
//	poll    run a bounded number of poll ticks in the foreground
//	stats   print summary statistics for a trailing window
//	latest  print the reading parsed from the latest snapshot
func main() {
	rootCmd := &cobra.Command{
		Use:           "pvwatch",
		Short:         "PV telemetry monitor",
		Long:          `pvwatch polls a remote PV telemetry CSV, archives each revision and records its readings as a time series.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml when present)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(latestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll continuously and serve the query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, cfgFile)
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Serve(ctx)
		},
	}
}

func pollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run a bounded number of poll ticks in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, cfgFile)
			if err != nil {
				return err
			}
			defer app.Close()

			iterations, _ := cmd.Flags().GetInt("iterations")
			interval, _ := cmd.Flags().GetDuration("interval")

			opts := scheduler.Options{Iterations: iterations}
			if interval > 0 {
				opts.Schedule, err = scheduler.ParseSchedule("", interval)
			} else {
				opts.Schedule, err = scheduler.ParseSchedule(app.cfg.Poll.Schedule, app.cfg.Poll.Interval)
			}
			if err != nil {
				return err
			}

			counts := map[ingest.Outcome]int{}
			opts.OnTick = func(o ingest.Outcome, err error) {
				counts[o]++
				app.recordOutcome(o, err)
			}

			sched, err := app.newScheduler(opts)
			if err != nil {
				return err
			}
			sched.Run(ctx)

			app.logger.WithField("outcomes", counts).Info("poll finished")
			return nil
		},
	}

	cmd.Flags().Int("iterations", 1, "number of ticks to run (0 = until interrupted)")
	cmd.Flags().Duration("interval", 0, "delay between ticks (default from config)")
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print summary statistics for a trailing window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApplication(ctx, cfgFile)
			if err != nil {
				return err
			}
			defer app.Close()

			raw, _ := cmd.Flags().GetString("window")
			window, err := history.ParseWindow(raw)
			if err != nil {
				return err
			}
			stats, err := app.history.Aggregate(ctx, window)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"window": window.String(), "stats": stats})
		},
	}

	cmd.Flags().String("window", "24", "trailing window: hours, days (7d) or a duration (90m); presets "+presetHours())
	return cmd
}

func latestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Print the reading parsed from the latest snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApplication(ctx, cfgFile)
			if err != nil {
				return err
			}
			defer app.Close()

			reading, err := app.history.FetchLatest(ctx)
			if err != nil {
				return err
			}
			return printJSON(reading)
		},
	}
}

func presetHours() string {
	hours := make([]string, 0, len(history.Presets))
	for _, p := range history.Presets {
		hours = append(hours, strconv.Itoa(int(p.Hours())))
	}
	return strings.Join(hours, ", ")
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// shutdownTimeout bounds graceful shutdown of the servers.
const shutdownTimeout = 10 * time.Second

func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), shutdownTimeout)
}
