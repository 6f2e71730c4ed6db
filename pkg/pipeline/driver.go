package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cpg314/paperless-llm/pkg/paperless"
)

// ListCandidates enumerates the documents to process: those carrying the
// marker tag, or every document under the ProcessAll override.
func (p *Pipeline) ListCandidates(ctx context.Context) ([]int, error) {
	opts := paperless.ListOptions{}
	if !p.config.ProcessAll {
		tagID := p.config.TagID
		opts.TagID = &tagID
	}
	ids, err := p.deps.Store.ListDocuments(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing candidate documents: %w", err)
	}
	sort.Ints(ids)
	return ids, nil
}

// Run feeds the candidates through the controller under a worker pool bounded
// by the inference slot count. Documents are processed independently, with no
// ordering guarantee across them. Per-document failures are aggregated into
// the summary, never propagated.
func (p *Pipeline) Run(ctx context.Context, ids []int) ([]Task, RunSummary) {
	start := time.Now()

	tasks := make([]Task, len(ids))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.config.Slots)
	for i, id := range ids {
		i, id := i, id
		eg.Go(func() error {
			tasks[i] = p.processDocument(gctx, id)
			if p.config.OnProgress != nil {
				p.config.OnProgress(tasks[i])
			}
			return nil
		})
	}
	// Workers never return errors; cancellation surfaces as failed tasks.
	_ = eg.Wait()

	summary := RunSummary{
		Candidates: len(ids),
		DryRun:     !p.config.Apply,
	}
	for _, task := range tasks {
		switch task.Status {
		case StatusApplied:
			summary.Applied++
		case StatusSkipped:
			summary.Skipped++
		default:
			summary.Failed++
			summary.FailedIDs = append(summary.FailedIDs, task.DocumentID)
		}
		if task.CacheHit {
			summary.CacheHits++
		}
	}
	sort.Ints(summary.FailedIDs)
	summary.Elapsed = time.Since(start)
	return tasks, summary
}
