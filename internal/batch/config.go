package batch

import (
	"fmt"
	"io"
	"time"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/pipeline"
)

// Config holds all configuration for batch verification.
type Config struct {
	// CustomerID owns every file. When empty each file belongs to the
	// customer named by its parent directory.
	CustomerID string
	// DocumentType forces one type for every file instead of inferring it
	// from the file name.
	DocumentType domain.DocumentType
	Strategy     string

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Progress settings
	ShowProgress     bool
	Quiet            bool
	ProgressInterval int
	Progress         io.Writer
}

// Item is the outcome for one file.
type Item struct {
	File         string              `json:"file"`
	CustomerID   string              `json:"customer_id"`
	DocumentType domain.DocumentType `json:"document_type"`
	Result       *pipeline.Result    `json:"result,omitempty"`
	Err          error               `json:"-"`
}

// Failed reports whether the file could not be verified at all.
func (it Item) Failed() bool { return it.Err != nil }

// Result holds the result of batch processing.
type Result struct {
	Items       []Item
	Duration    time.Duration
	WorkerCount int
}

// Stats summarizes a batch by verdict.
type Stats struct {
	Total    int
	Failed   int
	ByStatus map[domain.VerificationStatus]int
}

// Stats counts verdicts and failures.
func (r *Result) Stats() Stats {
	s := Stats{Total: len(r.Items), ByStatus: make(map[domain.VerificationStatus]int)}
	for _, it := range r.Items {
		if it.Failed() || it.Result == nil {
			s.Failed++
			continue
		}
		s.ByStatus[it.Result.Record.Status]++
	}
	return s
}

// FormatResults formats the batch results in the specified format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatBatchResults(r.Items, format)
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer) {
	s := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total documents: %d\n", s.Total)
	for _, st := range []domain.VerificationStatus{
		domain.StatusVerified, domain.StatusPartiallyVerified, domain.StatusNeedsReview, domain.StatusRejected,
	} {
		_, _ = fmt.Fprintf(w, "  %s: %d\n", st, s.ByStatus[st])
	}
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", r.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", r.Duration.Round(time.Millisecond))
	if s.Total > 0 && r.Duration > 0 {
		_, _ = fmt.Fprintf(w, "  Throughput: %.1f documents/sec\n", float64(s.Total)/r.Duration.Seconds())
	}
}
