package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.elastic.co/ecszerolog"

	"github.com/clinico/clinico/internal/config"
	"github.com/clinico/clinico/internal/domain/identity"
	"github.com/clinico/clinico/internal/migration"
	"github.com/clinico/clinico/internal/platform/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "legacy-import",
		Short: "Legacy patient identity resolution and migration engine",
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Emit per-record trace lines instead of periodic progress")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose bool) zerolog.Logger {
	if verbose || os.Getenv("ENV") == "development" {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
		if verbose {
			logger = logger.Level(zerolog.DebugLevel)
		}
		return logger
	}
	return ecszerolog.New(os.Stdout)
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a legacy patient migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd)
		},
	}

	cmd.Flags().String("source", "", "Source location: directory tree or delimited file (required)")
	cmd.Flags().String("device-type", "auto", "Device type for the dependent-artifact adapter: zeiss, solix, tomey, auto")
	cmd.Flags().String("format", "folder", "Source format: folder or delimited")
	cmd.Flags().Bool("dry-run", false, "Preview mode: compute decisions without mutating anything")
	cmd.Flags().Int("skip", 0, "Skip the first N discovered candidates")
	cmd.Flags().Int("limit", 0, "Process at most N candidates (0 = all)")
	cmd.Flags().Float64("match-threshold", 0.85, "Fuzzy-match acceptance threshold in [0,1]")
	cmd.Flags().Bool("import-exams", true, "Import dependent exam artifacts")
	cmd.Flags().Bool("fast-scan", false, "Skip per-directory metadata and artifact enumeration")
	cmd.Flags().Bool("resume", false, "Skip records already finalized on the mapping ledger")
	cmd.Flags().String("output", "./migration-report.csv", "Report file path")
	cmd.Flags().String("legacy-system", "folder_based", "Legacy system name namespacing the mapping ledger key")

	return cmd
}

func runMigration(cmd *cobra.Command) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	source, _ := cmd.Flags().GetString("source")
	deviceType, _ := cmd.Flags().GetString("device-type")
	format, _ := cmd.Flags().GetString("format")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	skip, _ := cmd.Flags().GetInt("skip")
	limit, _ := cmd.Flags().GetInt("limit")
	threshold, _ := cmd.Flags().GetFloat64("match-threshold")
	importExams, _ := cmd.Flags().GetBool("import-exams")
	fastScan, _ := cmd.Flags().GetBool("fast-scan")
	resume, _ := cmd.Flags().GetBool("resume")
	output, _ := cmd.Flags().GetString("output")
	legacySystem, _ := cmd.Flags().GetString("legacy-system")

	logger := newLogger(verbose)

	if source == "" {
		return fmt.Errorf("--source is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return err
	}

	// Flags win over environment; unchanged flags fall back to config.
	if !cmd.Flags().Changed("match-threshold") {
		threshold = cfg.MatchThreshold
	}
	if !cmd.Flags().Changed("legacy-system") {
		legacySystem = cfg.LegacySystem
	}
	if !cmd.Flags().Changed("output") {
		output = cfg.ReportPath
	}
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("--match-threshold must be in [0,1], got %v", threshold)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()

	var records []*migration.LegacyRecord
	switch format {
	case "folder":
		records, err = migration.NewFolderExtractor(source, legacySystem, fastScan).Extract()
	case "delimited":
		records, err = migration.NewDelimitedExtractor(source, legacySystem).Extract()
	default:
		return fmt.Errorf("--format must be \"folder\" or \"delimited\", got %q", format)
	}
	if err != nil {
		logger.Error().Err(err).Str("source", source).Msg("source extraction failed")
		return err
	}

	records = migration.Window(records, skip, limit)
	logger.Info().Int("candidates", len(records)).Bool("dry_run", dryRun).Msg("starting migration run")

	patients := identity.NewPatientRepo(pool)
	tracker := migration.NewTracker(pool)
	adapter, err := migration.NewExamAdapter(deviceType, migration.NewExamSink(pool))
	if err != nil {
		return err
	}
	resolver := migration.NewResolver(patients, threshold)
	engine := migration.NewEngine(patients, tracker, resolver, adapter, logger)

	result, err := engine.Run(ctx, records, migration.RunOptions{
		LegacySystem: legacySystem,
		DryRun:       dryRun,
		Resume:       resume,
		ImportExams:  importExams,
		Verbose:      verbose,
	})
	if err != nil {
		logger.Error().Err(err).Msg("migration run aborted")
		return err
	}

	if err := migration.WriteReport(output, result.Rows); err != nil {
		logger.Error().Err(err).Msg("failed to write report")
		return err
	}

	fmt.Print(formatSummary(result, dryRun, output))
	return nil
}

func formatSummary(result *migration.RunResult, dryRun bool, output string) string {
	var b strings.Builder
	if dryRun {
		b.WriteString("Migration run complete (dry-run, nothing was written).\n")
	} else {
		b.WriteString("Migration run complete.\n")
	}
	fmt.Fprintf(&b, "  processed:          %d\n", result.Processed)
	fmt.Fprintf(&b, "  matched:            %d\n", result.Matched)
	fmt.Fprintf(&b, "  created:            %d\n", result.Created)
	fmt.Fprintf(&b, "  needs review:       %d\n", result.NeedsReview)
	fmt.Fprintf(&b, "  skipped:            %d\n", result.Skipped)
	fmt.Fprintf(&b, "  errors:             %d\n", result.Errors)
	fmt.Fprintf(&b, "  artifacts imported: %d\n", result.ArtifactsImported)
	fmt.Fprintf(&b, "  duration:           %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Report written to %s\n", output)
	return b.String()
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cumulative migration status from the mapping ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			errCount, _ := cmd.Flags().GetInt("errors")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			tracker := migration.NewTracker(pool)
			summary, err := tracker.AggregateStatus(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Mapping ledger: %d record(s)\n\n", summary.Total)
			fmt.Printf("%-14s %s\n", "STATUS", "COUNT")
			for _, status := range []migration.MappingStatus{
				migration.StatusMatched, migration.StatusCreated, migration.StatusNeedsReview,
				migration.StatusSkipped, migration.StatusMerged, migration.StatusPending, migration.StatusError,
			} {
				if n := summary.ByStatus[status]; n > 0 {
					fmt.Printf("%-14s %d\n", status, n)
				}
			}

			if len(summary.BySystem) > 0 {
				fmt.Printf("\n%-14s %s\n", "SYSTEM", "COUNT")
				for system, n := range summary.BySystem {
					fmt.Printf("%-14s %d\n", system, n)
				}
			}

			recent, err := tracker.RecentErrors(ctx, errCount)
			if err != nil {
				return err
			}
			if len(recent) > 0 {
				fmt.Printf("\nRecent errors (%d):\n", len(recent))
				for _, r := range recent {
					fmt.Printf("  %s/%s at %s: %s\n",
						r.LegacySystem, r.SourceKey,
						r.ProcessedAt.Format("2006-01-02 15:04:05"), r.ErrorMessage)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("errors", 10, "Number of recent error records to show")
	return cmd
}
