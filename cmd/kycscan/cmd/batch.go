package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/kycscan/internal/batch"
	"github.com/MeKo-Tech/kycscan/internal/domain"
)

// batchCmd verifies many documents on the worker pool.
var batchCmd = &cobra.Command{
	Use:   "batch [files or directories...]",
	Short: "Verify many documents in parallel",
	Long: `Verify many document files in parallel.

The document type of each file is inferred from its name unless --type is
given. Files belong to --customer, or to the customer named by their parent
directory.

Supported formats: PNG, JPEG, BMP, PDF (first page)

Examples:
  kycscan batch scans/cust-1/*.png
  kycscan batch scans/ --recursive --workers 8
  kycscan batch scans/ --recursive --format json --output results.json`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatchCommand,
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	if cmd.Flags().Changed("workers") {
		cfg.Batch.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("format") {
		cfg.Batch.Format, _ = cmd.Flags().GetString("format")
	}
	if cmd.Flags().Changed("continue-on-error") {
		cfg.Batch.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	bc := batch.Config{Progress: cmd.ErrOrStderr()}
	bc.CustomerID, _ = cmd.Flags().GetString("customer")
	bc.Strategy, _ = cmd.Flags().GetString("strategy")
	bc.Recursive, _ = cmd.Flags().GetBool("recursive")
	bc.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	bc.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")
	bc.ShowProgress, _ = cmd.Flags().GetBool("progress")
	bc.Quiet, _ = cmd.Flags().GetBool("quiet")
	bc.ProgressInterval, _ = cmd.Flags().GetInt("progress-interval")
	if t, _ := cmd.Flags().GetString("type"); t != "" {
		dt, err := domain.ParseDocumentType(t)
		if err != nil {
			return err
		}
		bc.DocumentType = dt
	}

	a, err := buildApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	res, err := batch.ProcessBatch(cmd.Context(), a.pipeline, args, bc)
	if err != nil {
		return err
	}

	out, err := res.FormatResults(cfg.Batch.Format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	if outputFile, _ := cmd.Flags().GetString("output"); outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(out), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
	} else {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
	}

	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		res.PrintStats(cmd.ErrOrStderr())
	}

	if failed := res.Stats().Failed; failed > 0 && !cfg.Batch.ContinueOnError {
		return fmt.Errorf("%d of %d documents could not be verified", failed, len(res.Items))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringP("customer", "c", "", "customer for every file (default: parent directory name)")
	batchCmd.Flags().StringP("type", "t", "", "document type for every file (default: inferred from file name)")
	batchCmd.Flags().String("strategy", "", "extraction strategy override (e.g. label@v1)")
	batchCmd.Flags().BoolP("recursive", "r", false, "process directories recursively")
	batchCmd.Flags().StringSlice("include", nil, "include file patterns (default: *.png,*.jpg,*.jpeg,*.bmp,*.pdf)")
	batchCmd.Flags().StringSlice("exclude", nil, "exclude file patterns")
	batchCmd.Flags().IntP("workers", "w", 4, "number of parallel workers")
	batchCmd.Flags().StringP("format", "f", "text", "output format (text, json, csv)")
	batchCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	batchCmd.Flags().Bool("progress", false, "show a progress bar on stderr")
	batchCmd.Flags().BoolP("quiet", "q", false, "suppress progress reporting")
	batchCmd.Flags().Int("progress-interval", 10, "log progress every N documents")
	batchCmd.Flags().Bool("stats", false, "print processing statistics")
	batchCmd.Flags().Bool("continue-on-error", false, "exit successfully even if some documents failed")
}
