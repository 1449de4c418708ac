package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Progress receives updates while RunMany works through a batch. OnDocument
// may be called from several goroutines.
type Progress interface {
	OnStart(total int)
	OnDocument(done, total int, item BatchItem)
	OnComplete()
}

// NoOpProgress ignores all updates.
type NoOpProgress struct{}

func (NoOpProgress) OnStart(int)                   {}
func (NoOpProgress) OnDocument(int, int, BatchItem) {}
func (NoOpProgress) OnComplete()                    {}

// ConsoleProgress draws a single-line progress bar with per-status tallies.
type ConsoleProgress struct {
	writer io.Writer
	prefix string
	width  int

	mu       sync.Mutex
	start    time.Time
	counts   map[string]int
	failures int
}

// NewConsoleProgress creates a console reporter; nil writer means stderr.
func NewConsoleProgress(w io.Writer, prefix string) *ConsoleProgress {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleProgress{writer: w, prefix: prefix, width: 30, counts: make(map[string]int)}
}

// WithWidth sets the bar width.
func (c *ConsoleProgress) WithWidth(width int) *ConsoleProgress {
	if width > 0 {
		c.width = width
	}
	return c
}

func (c *ConsoleProgress) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
	_, _ = fmt.Fprintf(c.writer, "%s0/%d (0.0%%)\n", c.prefix, total)
}

func (c *ConsoleProgress) OnDocument(done, total int, item BatchItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item.Err != nil {
		c.failures++
	} else if item.Result != nil {
		c.counts[string(item.Result.Record.Status)]++
	}
	if total == 0 {
		return
	}
	filled := c.width * done / total
	bar := strings.Repeat("#", filled) + strings.Repeat(".", c.width-filled)
	_, _ = fmt.Fprintf(c.writer, "\r%s[%s] %d/%d (%.1f%%)", c.prefix, bar, done, total,
		float64(done)/float64(total)*100)
}

func (c *ConsoleProgress) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	parts := make([]string, 0, len(c.counts)+1)
	for _, st := range []string{"VERIFIED", "PARTIALLY_VERIFIED", "NEEDS_REVIEW", "REJECTED"} {
		if n := c.counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", st, n))
		}
	}
	if c.failures > 0 {
		parts = append(parts, fmt.Sprintf("errors=%d", c.failures))
	}
	_, _ = fmt.Fprintf(c.writer, "\n%sCompleted in %v %s\n", c.prefix,
		time.Since(c.start).Round(time.Millisecond), strings.Join(parts, " "))
}

// LogProgress logs progress with slog every interval documents.
type LogProgress struct {
	logger   *slog.Logger
	interval int

	mu      sync.Mutex
	lastLog int
	start   time.Time
}

// NewLogProgress creates a log reporter; nil logger means slog.Default().
func NewLogProgress(logger *slog.Logger, interval int) *LogProgress {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10
	}
	return &LogProgress{logger: logger, interval: interval}
}

func (l *LogProgress) OnStart(total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.start = time.Now()
	l.lastLog = 0
	l.logger.Info("Starting batch", "total", total)
}

func (l *LogProgress) OnDocument(done, total int, item BatchItem) {
	if item.Err != nil {
		l.logger.Error("Document failed", "document_id", item.Run.DocumentID, "error", item.Err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if done-l.lastLog < l.interval && done != total {
		return
	}
	l.lastLog = done
	l.logger.Info("Batch progress",
		"done", done,
		"total", total,
		"elapsed", time.Since(l.start).Round(time.Millisecond))
}

func (l *LogProgress) OnComplete() {
	l.logger.Info("Batch completed", "elapsed", time.Since(l.start).Round(time.Millisecond))
}
