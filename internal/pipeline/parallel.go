package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/kycscan/internal/domain"
)

// BatchItem is the result of one document in a RunMany call.
type BatchItem struct {
	Run    domain.RunContext `json:"run"`
	Result *Result           `json:"result,omitempty"`
	Err    error             `json:"-"`
}

// RunMany verifies documents on a bounded worker pool. Documents are
// independent: one failing does not stop the others. Items come back in
// input order. The returned error is only set when ctx is cancelled.
func (p *Pipeline) RunMany(ctx context.Context, runs []domain.RunContext, progress Progress) ([]BatchItem, error) {
	if progress == nil {
		progress = NoOpProgress{}
	}
	items := make([]BatchItem, len(runs))
	if len(runs) == 0 {
		return items, nil
	}
	started := make([]bool, len(runs))

	progress.OnStart(len(runs))
	defer progress.OnComplete()

	var (
		mu   sync.Mutex
		done int
	)
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Workers)
	for i, rc := range runs {
		if ctx.Err() != nil {
			break
		}
		started[i] = true
		g.Go(func() error {
			res, err := p.Run(ctx, rc)
			items[i] = BatchItem{Run: rc, Result: res, Err: err}
			if err != nil {
				slog.Warn("Document run failed", "document_id", rc.DocumentID, "error", err)
			}

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			progress.OnDocument(n, len(runs), items[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		for i, rc := range runs {
			if !started[i] {
				items[i] = BatchItem{Run: rc, Err: err}
			}
		}
		return items, err
	}
	return items, nil
}
