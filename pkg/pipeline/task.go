package pipeline

import (
	"time"

	"github.com/cpg314/paperless-llm/internal/models"
)

// Task tracks one document through the run. Tasks live for a single run only;
// the durable work-queue state is the marker tag in the store itself.
type Task struct {
	DocumentID int
	Status     Status
	// OldTitle is the title before processing, kept for reporting.
	OldTitle string
	Result   models.ExtractionResult
	Decision *Decision
	CacheHit bool
	Err      error
}

func (t Task) fail(err error) Task {
	t.Status = StatusFailed
	t.Err = err
	return t
}

// Decision is what the controller would commit for one document. It is
// computed identically in dry-run and apply modes; only whether it is
// persisted differs.
type Decision struct {
	Title *string
	// Amount is the formatted custom field value, e.g. "CHF1234.56".
	Amount *string
	// RemoveTag marks the marker tag for removal, the single commit point.
	RemoveTag bool
}

// HasWrites reports whether any field write would be issued.
func (d Decision) HasWrites() bool {
	return d.Title != nil || d.Amount != nil
}

// RunSummary aggregates per-document outcomes over one run.
type RunSummary struct {
	Candidates int
	Applied    int
	Skipped    int
	Failed     int
	CacheHits  int
	DryRun     bool
	Elapsed    time.Duration
	FailedIDs  []int
}
