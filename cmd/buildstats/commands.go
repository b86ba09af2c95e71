// v0
// cmd/buildstats/commands.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cyclesense/analysis/internal/dataset"
)

const (
	defaultOutput  = "data/dataset_stats.json"
	sourceDateEnv  = "SOURCE_DATE_EPOCH"
	flagInput      = "input"
	flagOutput     = "output"
	flagGenerated  = "generated-at"
	flagStatsInput = "stats"
)

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "buildstats",
		Short: "Build and inspect the reference dataset stats artifact",
		Long: `buildstats reduces the labelled reference dataset (CSV) into the small
JSON artifact read by the analysis service at startup.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newBuildCmd(logger), newInspectCmd())
	return root
}

func newBuildCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compute dataset stats from a CSV file",
		Long: `Reads the reference CSV, skips rows that are short, unparseable or carry
a Diagnosis other than 0/1, and writes the stats artifact atomically.

The generatedAt timestamp comes from --generated-at, then $SOURCE_DATE_EPOCH,
then the current time, so rebuilding the same input can be reproducible.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input, _ := cmd.Flags().GetString(flagInput)
			output, _ := cmd.Flags().GetString(flagOutput)
			generated, _ := cmd.Flags().GetString(flagGenerated)
			at, err := resolveGeneratedAt(generated, os.Getenv(sourceDateEnv), time.Now)
			if err != nil {
				return err
			}
			return runBuild(logger, input, output, at)
		},
	}
	cmd.Flags().String(flagInput, "", "path to the reference dataset CSV")
	cmd.Flags().String(flagOutput, defaultOutput, "where to write the stats artifact")
	cmd.Flags().String(flagGenerated, "", "RFC3339 timestamp recorded as generatedAt")
	_ = cmd.MarkFlagRequired(flagInput)
	return cmd
}

func runBuild(logger *slog.Logger, input, output string, at time.Time) error {
	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	stats, rep, err := dataset.BuildFromCSV(f, at, dataset.DefaultWeights())
	logger.Info("dataset_read",
		slog.String("input", input),
		slog.Int("rows_read", rep.RowsRead),
		slog.Int("rows_kept", rep.RowsKept),
		slog.Int("short_rows", rep.ShortRows),
		slog.Int("bad_rows", rep.BadRows),
		slog.Int("unlabeled", rep.Unlabeled),
	)
	if err != nil {
		return fmt.Errorf("build stats from %s: %w", input, err)
	}
	if err := dataset.Write(output, stats); err != nil {
		return err
	}
	logger.Info("dataset_stats_written",
		slog.String("output", output),
		slog.String("generated_at", stats.GeneratedAt),
		slog.Int("total_rows", stats.TotalRows),
		slog.Int("diagnosed", stats.DiagnosedGroup.Count),
		slog.Int("healthy", stats.HealthyGroup.Count),
		slog.Float64("diagnosed_mean_pain", stats.DiagnosedGroup.MeanPain),
		slog.Float64("healthy_mean_pain", stats.HealthyGroup.MeanPain),
	)
	return nil
}

type inspection struct {
	Path           string                 `json:"path"`
	GeneratedAt    string                 `json:"generatedAt"`
	TotalRows      int                    `json:"totalRows"`
	DiagnosedGroup dataset.GroupStats     `json:"diagnosedGroup"`
	HealthyGroup   dataset.GroupStats     `json:"healthyGroup"`
	Weights        dataset.ScoringWeights `json:"scoringWeights"`
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Validate a stats artifact and print its summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString(flagStatsInput)
			stats, err := dataset.Load(path)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(inspection{
				Path:           path,
				GeneratedAt:    stats.GeneratedAt,
				TotalRows:      stats.TotalRows,
				DiagnosedGroup: stats.DiagnosedGroup,
				HealthyGroup:   stats.HealthyGroup,
				Weights:        stats.ScoringWeights,
			})
		},
	}
	cmd.Flags().String(flagStatsInput, defaultOutput, "stats artifact to inspect")
	return cmd
}

var errBadTimestamp = errors.New("invalid generatedAt timestamp")

// resolveGeneratedAt prefers the explicit flag, then a SOURCE_DATE_EPOCH
// value in seconds, then now.
func resolveGeneratedAt(flag, epoch string, now func() time.Time) (time.Time, error) {
	if flag = strings.TrimSpace(flag); flag != "" {
		t, err := time.Parse(time.RFC3339, flag)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q is not RFC3339", errBadTimestamp, flag)
		}
		return t.UTC(), nil
	}
	if epoch = strings.TrimSpace(epoch); epoch != "" {
		secs, err := strconv.ParseInt(epoch, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s=%q", errBadTimestamp, sourceDateEnv, epoch)
		}
		return time.Unix(secs, 0).UTC(), nil
	}
	return now().UTC(), nil
}
