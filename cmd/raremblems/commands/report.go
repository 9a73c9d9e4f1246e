package commands

import (
	"errors"
	"fmt"
	"os"
	"raremblems/internal/manifest"
	"raremblems/internal/pipeline"
	"raremblems/internal/rarity"
	"raremblems/internal/report"
	"raremblems/internal/telemetry"

	"github.com/spf13/cobra"
)

func init() {
	addReportFlags(reportCmd)
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Sign in, rank your emblems and export them (the default command).",
	Run: func(cmd *cobra.Command, args []string) {
		err := runReport(cmd)
		if err != nil {
			fatal("failed to build report", err)
		}
	},
}

// runReport returns instead of exiting so telemetry is flushed and the cache
// closed on every path.
func runReport(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flush, err := setupTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer flush()

	tel := telemetry.SlogAPI{}
	cache, closeCache, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	dump, err := httpDump(cfg)
	if err != nil {
		return err
	}
	gateway, err := newGateway(cfg, tel)
	if err != nil {
		return err
	}
	platform := newPlatform(cfg, dump, tel)
	out := cmd.OutOrStdout()

	rows, err := pipeline.Run(ctx, pipeline.Stages{
		Auth: gateway,
		Prompt: func(loginUrl string) {
			fmt.Fprintf(out, "Open this URL in your browser and approve access:\n\n%s\n\n", loginUrl)
		},
		Platform: platform,
		Catalogs: manifest.NewResolver(platform, cache, cfg.Locale, tel),
		Rarity: rarity.NewAugmenter(rarity.Options{
			BaseUrl:     cfg.RarityBaseUrl,
			PoliteDelay: cfg.PoliteDelayDuration(),
			Dump:        dump,
		}, cache, tel),
		Tel: tel,
	})
	if errors.Is(err, pipeline.ErrNoEmblems) {
		fmt.Fprintln(out, "No owned emblems found. Are your collections visible?")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	report.PrintTop(out, rows, cfg.TopN)

	f, err := os.Create(cfg.Output)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	defer f.Close()
	err = report.WriteCSV(f, rows)
	if err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(out, "\nSaved full list to %s\n", cfg.Output)
	return nil
}
