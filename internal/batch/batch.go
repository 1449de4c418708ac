package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/pipeline"
)

// ErrNoFiles is returned when discovery finds nothing to verify.
var ErrNoFiles = errors.New("no document files found")

// ProcessBatch uploads every discovered file and verifies them on the
// pipeline's worker pool. A file that cannot be read or typed is reported as
// a failed item; it never stops the rest of the batch.
func ProcessBatch(ctx context.Context, pl *pipeline.Pipeline, args []string, cfg Config) (*Result, error) {
	start := time.Now()

	paths, err := discoverFiles(args, cfg.Recursive, cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}
	slog.Debug("Discovered document files", "count", len(paths))

	items := make([]Item, len(paths))
	runs := make([]domain.RunContext, 0, len(paths))
	runIndex := make([]int, 0, len(paths))
	known := pl.Profiles().Types()

	for i, path := range paths {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		items[i] = Item{File: path, CustomerID: customerFor(path, cfg.CustomerID), DocumentType: cfg.DocumentType}
		if items[i].DocumentType == "" {
			dt, ok := InferDocumentType(path, known)
			if !ok {
				items[i].Err = fmt.Errorf("%w: cannot infer type from %s", domain.ErrUnknownDocumentType, filepath.Base(path))
				continue
			}
			items[i].DocumentType = dt
		}

		data, err := os.ReadFile(path)
		if err != nil {
			items[i].Err = fmt.Errorf("failed to read %s: %w", path, err)
			continue
		}
		doc, err := pl.Upload(ctx, items[i].CustomerID, items[i].DocumentType, filepath.Base(path), data)
		if err != nil {
			items[i].Err = fmt.Errorf("failed to upload %s: %w", path, err)
			continue
		}
		runs = append(runs, domain.RunContext{
			CustomerID:  doc.CustomerID,
			DocumentID:  doc.ID,
			StrategyTag: cfg.Strategy,
		})
		runIndex = append(runIndex, i)
	}

	results, err := pl.RunMany(ctx, runs, progressFor(cfg))
	if err != nil {
		return nil, err
	}
	for j, bi := range results {
		items[runIndex[j]].Result = bi.Result
		items[runIndex[j]].Err = bi.Err
	}

	return &Result{
		Items:       items,
		Duration:    time.Since(start),
		WorkerCount: pl.Config().Workers,
	}, nil
}

func progressFor(cfg Config) pipeline.Progress {
	switch {
	case cfg.Quiet:
		return pipeline.NoOpProgress{}
	case cfg.ShowProgress:
		w := cfg.Progress
		if w == nil {
			w = os.Stderr
		}
		return pipeline.NewConsoleProgress(w, "Verifying")
	default:
		return pipeline.NewLogProgress(slog.Default(), cfg.ProgressInterval)
	}
}
