// Package pipeline drives document enrichment end-to-end: it selects
// candidate documents, obtains an extraction from the model for each, and
// commits the validated fields back to the store.
//
// Commit semantics: field writes happen first, then the marker tag is
// removed. The tag removal is the single commit point; a failure anywhere
// before it leaves the document's prior state untouched and still queued, so
// reruns are always safe.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cpg314/paperless-llm/internal/models"
	"github.com/cpg314/paperless-llm/pkg/cache"
	"github.com/cpg314/paperless-llm/pkg/extract"
	"github.com/cpg314/paperless-llm/pkg/llm"
	"github.com/cpg314/paperless-llm/pkg/paperless"
	"github.com/cpg314/paperless-llm/pkg/prompt"
)

// DocumentStore is the document-management store boundary.
type DocumentStore interface {
	ListDocuments(ctx context.Context, opts paperless.ListOptions) ([]int, error)
	Document(ctx context.Context, id int) (models.Document, error)
	UpdateDocument(ctx context.Context, id int, patch paperless.DocumentPatch) error
	RemoveTag(ctx context.Context, docID, tagID int) error
}

// Completer is the single-request inference boundary.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OutcomeCache stores past extraction outcomes keyed by document content.
type OutcomeCache interface {
	Get(ctx context.Context, docID int, contentHash string) (models.ExtractionResult, bool, error)
	Put(ctx context.Context, docID int, contentHash string, result models.ExtractionResult) error
}

type Config struct {
	// TagID is the marker tag: its presence means "needs processing" and its
	// removal is the pipeline's sole persistent commit signal.
	TagID int
	// AmountFieldID is the store id of the Amount custom field.
	AmountFieldID int
	Currency      string
	// Apply persists decisions. When false (dry run) the decision logic is
	// identical but no store mutation is issued.
	Apply bool
	// ProcessAll overrides the marker-tag filter and selects every document.
	ProcessAll bool
	// KeepTagOnEmpty retains the marker tag when the model found nothing to
	// extract, leaving the document flagged for manual attention instead of
	// treating it as processed.
	KeepTagOnEmpty bool
	// MaxAttempts bounds inference retries on transient failures.
	MaxAttempts int
	RetryBase   time.Duration
	// Slots bounds concurrent document processing; it should match the model
	// server's parallel-slot count.
	Slots int
	// OnProgress is invoked after each document reaches a terminal state.
	OnProgress func(task Task)
}

type Deps struct {
	Store     DocumentStore
	Completer Completer
	Builder   prompt.Builder
	Validator extract.Validator
	// Cache is optional; nil disables outcome caching.
	Cache OutcomeCache
}

type Pipeline struct {
	config Config
	deps   Deps
}

func NewWithConfig(config Config, deps Deps) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("pipeline requires a document store")
	}
	if deps.Completer == nil {
		return nil, fmt.Errorf("pipeline requires a completer")
	}
	if config.Currency == "" {
		config.Currency = "CHF"
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if config.RetryBase == 0 {
		config.RetryBase = 500 * time.Millisecond
	}
	if config.Slots == 0 {
		config.Slots = 4
	}

	return &Pipeline{config: config, deps: deps}, nil
}

// processDocument runs one document through the full lifecycle and returns
// its terminal task. All failures are contained in the task; they never abort
// the run.
func (p *Pipeline) processDocument(ctx context.Context, id int) Task {
	task := Task{DocumentID: id, Status: StatusSelected}

	doc, err := p.deps.Store.Document(ctx, id)
	if err != nil {
		return task.fail(fmt.Errorf("retrieving document: %w", err))
	}
	task.OldTitle = doc.Title

	result, cacheHit, err := p.extractFields(ctx, doc, &task)
	if err != nil {
		return task.fail(err)
	}
	task.Result = result
	task.CacheHit = cacheHit

	task.Status = StatusDeciding
	decision := p.decide(result)
	task.Decision = &decision

	if p.config.Apply {
		task.Status = StatusApplying
		if err := p.apply(ctx, doc, decision); err != nil {
			// Marker tag retained: the document stays queued for a rerun.
			return task.fail(err)
		}
	}

	if decision.HasWrites() {
		task.Status = StatusApplied
	} else {
		task.Status = StatusSkipped
	}
	return task
}

// extractFields produces the extraction result for a document, consulting the
// outcome cache first when one is configured.
func (p *Pipeline) extractFields(ctx context.Context, doc models.Document, task *Task) (models.ExtractionResult, bool, error) {
	task.Status = StatusPrompting

	var hash string
	if p.deps.Cache != nil {
		hash = cache.Hash(doc.Content)
		cached, ok, err := p.deps.Cache.Get(ctx, doc.ID, hash)
		if err != nil {
			// Cache trouble is never fatal; fall through to inference.
			log.Printf("outcome cache lookup failed for document %d: %v", doc.ID, err)
		} else if ok {
			return cached, true, nil
		}
	}

	promptText := p.deps.Builder.Build(doc.Content)

	task.Status = StatusAwaitingInference
	raw, err := p.completeWithRetry(ctx, promptText)
	if err != nil {
		return models.ExtractionResult{}, false, err
	}

	task.Status = StatusValidating
	result := p.deps.Validator.Parse(raw)

	if p.deps.Cache != nil {
		if err := p.deps.Cache.Put(ctx, doc.ID, hash, result); err != nil {
			log.Printf("outcome cache write failed for document %d: %v", doc.ID, err)
		}
	}
	return result, false, nil
}

// completeWithRetry retries transient inference failures with bounded
// exponential backoff. Hard inference errors are returned immediately.
func (p *Pipeline) completeWithRetry(ctx context.Context, promptText string) (string, error) {
	delay := p.config.RetryBase
	var lastErr error
	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		raw, err := p.deps.Completer.Complete(ctx, promptText)
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, llm.ErrUnavailable) && !errors.Is(err, llm.ErrTimeout) {
			return "", err
		}
		lastErr = err
		if attempt == p.config.MaxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		delay *= 2
	}
	return "", fmt.Errorf("giving up after %d attempts: %w", p.config.MaxAttempts, lastErr)
}

// decide turns an extraction result into the commit decision. Only fields the
// validator marked valid are written; an invalid field is dropped without
// blocking its siblings.
func (p *Pipeline) decide(result models.ExtractionResult) Decision {
	var d Decision
	if result.Title.State == models.FieldValid {
		title := result.Title.Value
		d.Title = &title
	}
	if result.Amount.State == models.FieldValid {
		amount := fmt.Sprintf("%s%.2f", p.config.Currency, result.Amount.Value)
		d.Amount = &amount
	}
	if d.HasWrites() {
		d.RemoveTag = true
	} else {
		// The model found nothing to extract. Rerunning on unchanged content
		// would reproduce the same empty result, so by default the document
		// counts as processed; KeepTagOnEmpty leaves it queued instead.
		d.RemoveTag = !p.config.KeepTagOnEmpty
	}
	return d
}

// apply commits the decision: the valid field subset in one write, then the
// marker tag removal as the commit point.
func (p *Pipeline) apply(ctx context.Context, doc models.Document, d Decision) error {
	if d.HasWrites() {
		patch := paperless.DocumentPatch{Title: d.Title}
		if d.Amount != nil {
			patch.CustomFields = replaceField(doc.CustomFields, p.config.AmountFieldID, *d.Amount)
		}
		if err := p.deps.Store.UpdateDocument(ctx, doc.ID, patch); err != nil {
			return fmt.Errorf("writing fields: %w", err)
		}
	}
	if d.RemoveTag {
		if err := p.deps.Store.RemoveTag(ctx, doc.ID, p.config.TagID); err != nil {
			return fmt.Errorf("removing marker tag: %w", err)
		}
	}
	return nil
}

// replaceField returns the custom field set with the given field set to value,
// preserving all other fields.
func replaceField(fields []models.CustomFieldValue, fieldID int, value string) []models.CustomFieldValue {
	out := make([]models.CustomFieldValue, 0, len(fields)+1)
	for _, f := range fields {
		if f.Field != fieldID {
			out = append(out, f)
		}
	}
	return append(out, models.CustomFieldValue{Field: fieldID, Value: value})
}
