// Package cache is an optional Postgres-backed cache of past extraction
// outcomes. It lets reruns over a large store skip inference for documents
// whose content has not changed. The pipeline behaves identically without it,
// only slower.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cpg314/paperless-llm/internal/models"
)

type CacheConfig struct {
	ConnString string
	TableName  string
}

type Cache struct {
	config CacheConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(config CacheConfig) (*Cache, error) {
	if config.TableName == "" {
		config.TableName = "extractions"
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}

	c := &Cache{
		config: config,
		pool:   pool,
	}

	if err := c.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return c, nil
}

func (c *Cache) initialize() error {
	ctx := context.Background()

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			doc_id BIGINT NOT NULL,
			content_hash TEXT NOT NULL,
			title TEXT,
			title_state SMALLINT NOT NULL,
			amount DOUBLE PRECISION,
			amount_state SMALLINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (doc_id, content_hash)
		)`, c.config.TableName)

	if _, err := c.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create cache table: %w", err)
	}
	return nil
}

// Hash fingerprints document content for cache keying.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached extraction for the document at the given content
// hash, if any.
func (c *Cache) Get(ctx context.Context, docID int, contentHash string) (models.ExtractionResult, bool, error) {
	query := fmt.Sprintf(`
		SELECT title, title_state, amount, amount_state
		FROM %s
		WHERE doc_id = $1 AND content_hash = $2`,
		c.config.TableName)

	var (
		title       *string
		titleState  int16
		amount      *float64
		amountState int16
	)
	err := c.pool.QueryRow(ctx, query, docID, contentHash).Scan(&title, &titleState, &amount, &amountState)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ExtractionResult{}, false, nil
	}
	if err != nil {
		return models.ExtractionResult{}, false, fmt.Errorf("failed to query cache: %w", err)
	}

	var result models.ExtractionResult
	result.Title.State = models.FieldState(titleState)
	if title != nil {
		result.Title.Value = *title
	}
	result.Amount.State = models.FieldState(amountState)
	if amount != nil {
		result.Amount.Value = *amount
	}
	return result, true, nil
}

// Put records an extraction outcome. Re-putting the same key overwrites,
// which keeps reruns idempotent.
func (c *Cache) Put(ctx context.Context, docID int, contentHash string, result models.ExtractionResult) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (doc_id, content_hash, title, title_state, amount, amount_state)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (doc_id, content_hash) DO UPDATE SET
			title = EXCLUDED.title,
			title_state = EXCLUDED.title_state,
			amount = EXCLUDED.amount,
			amount_state = EXCLUDED.amount_state`,
		c.config.TableName)

	var title *string
	if result.Title.State == models.FieldValid {
		title = &result.Title.Value
	}
	var amount *float64
	if result.Amount.State == models.FieldValid {
		amount = &result.Amount.Value
	}

	if _, err := c.pool.Exec(ctx, stmt, docID, contentHash, title, int16(result.Title.State), amount, int16(result.Amount.State)); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

func (c *Cache) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}
