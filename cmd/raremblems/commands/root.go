package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"raremblems/internal/config"
	"raremblems/internal/telemetry"
	"raremblems/lib/osutil"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	topN       int
	output     string
)

var rootCmd = &cobra.Command{
	Use:   "raremblems",
	Short: "raremblems ranks the emblems you own by their community rarity.",
	Long: `raremblems signs in to your Bungie.net account, finds every emblem unlocked on
your profile and looks up how many players own each one. The rarest ones are
printed and the full list is saved as a CSV file.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
	Run: func(cmd *cobra.Command, args []string) {
		err := runReport(cmd)
		if err != nil {
			fatal("failed to build report", err)
		}
	},
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "raremblems.json5", "config file, searched for from the working directory upwards")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log debug information")

	addReportFlags(rootCmd)
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&topN, "top", "n", 0, "amount of emblems to print, 0 prints all (overrides top_n)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "path of the CSV export (overrides output)")
}

func Execute() {
	ctx, stop := osutil.SignalContext(context.Background())
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	os.Exit(1)
}

// loadConfig applies the report flags the user set on top of config.Load.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("top") {
		cfg.TopN = topN
	}
	if cmd.Flags().Changed("output") {
		cfg.Output = output
	}
	return cfg, nil
}

// setupTelemetry starts otlp export when it is configured, the returned
// function flushes it.
func setupTelemetry(ctx context.Context, cfg config.Config) (func(), error) {
	if !cfg.Telemetry.Enabled() {
		return func() {}, nil
	}
	otel, err := telemetry.Setup(ctx, "raremblems", cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	if otel.MeterProvider != nil {
		telemetry.InstrumentPerfStats(ctx)
	}
	return func() {
		err := otel.Shutdown(context.Background())
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	}, nil
}
