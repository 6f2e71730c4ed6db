// Package paperless is a thin client for the paperless-ngx REST API.
// See https://docs.paperless-ngx.com/api/
//
// The client retries transient transport failures (network errors, 5xx) with
// bounded backoff. Everything else is returned as-is: auth rejections and
// client errors cannot succeed on a later attempt, and per-document failure
// accounting lives with the caller.
package paperless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/cpg314/paperless-llm/internal/models"
)

var (
	// ErrAuth is returned when the store rejects the API token. Fatal to the
	// whole run; retrying cannot help.
	ErrAuth = errors.New("paperless: authentication rejected")
	// ErrTransient marks network failures and server-side errors that a later
	// attempt may succeed on.
	ErrTransient = errors.New("paperless: transient error")
)

type ClientConfig struct {
	BaseURL string
	Token   string
	// RateLimit caps requests per second against the store.
	RateLimit float64
	Timeout   time.Duration
	PageSize  int
	// MaxAttempts bounds per-request retries of transient failures.
	MaxAttempts int
	RetryBase   time.Duration
}

type Client struct {
	config  ClientConfig
	client  *http.Client
	apiURL  *url.URL
	limiter *rate.Limiter
}

func NewWithConfig(config ClientConfig) (*Client, error) {
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.PageSize == 0 {
		config.PageSize = 100
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if config.RetryBase == 0 {
		config.RetryBase = 250 * time.Millisecond
	}

	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid paperless URL: %w", err)
	}
	apiURL, err := base.Parse("/api/")
	if err != nil {
		return nil, fmt.Errorf("invalid paperless URL: %w", err)
	}

	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		apiURL:  apiURL,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// do executes a request with auth and rate limiting, decoding the JSON
// response into out when out is non-nil. Transient failures are retried with
// bounded exponential backoff; the response is only decoded on success, so a
// retried request never half-fills out.
func (c *Client) do(ctx context.Context, method, ref string, query url.Values, body interface{}, out interface{}) error {
	delay := c.config.RetryBase
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		err := c.doOnce(ctx, method, ref, query, body, out)
		if err == nil || !errors.Is(err, ErrTransient) {
			return err
		}
		lastErr = err
		if attempt == c.config.MaxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, ref string, query url.Values, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u, err := c.apiURL.Parse(ref)
	if err != nil {
		return err
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+c.config.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrAuth, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d for %s", ErrTransient, resp.StatusCode, u.Path)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("paperless: status %d for %s", resp.StatusCode, u.Path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("paperless: decoding %s response: %w", u.Path, err)
	}
	return nil
}

// pagedResults is the standard paperless-ngx list envelope.
type pagedResults struct {
	Next    *string         `json:"next"`
	Results json.RawMessage `json:"results"`
}

// listAll walks a paginated listing, invoking page with each raw results
// array. Restartable across pages: each page is fetched independently.
func (c *Client) listAll(ctx context.Context, ref string, query url.Values, page func(raw json.RawMessage) error) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("page_size", strconv.Itoa(c.config.PageSize))
	pageNum := 1
	for {
		query.Set("page", strconv.Itoa(pageNum))
		var res pagedResults
		if err := c.do(ctx, http.MethodGet, ref, query, nil, &res); err != nil {
			return err
		}
		if err := page(res.Results); err != nil {
			return err
		}
		if res.Next == nil || *res.Next == "" {
			return nil
		}
		pageNum++
	}
}

// idName resolves a name→id map from one of the paperless listing endpoints.
func (c *Client) idName(ctx context.Context, ref string) (map[string]int, error) {
	out := make(map[string]int)
	err := c.listAll(ctx, ref, nil, func(raw json.RawMessage) error {
		var entries []struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &entries); err != nil {
			return err
		}
		for _, e := range entries {
			out[e.Name] = e.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Tags returns all tag names mapped to their store-assigned ids.
func (c *Client) Tags(ctx context.Context) (map[string]int, error) {
	return c.idName(ctx, "tags/")
}

// CustomFields returns all custom field names mapped to their ids.
func (c *Client) CustomFields(ctx context.Context) (map[string]int, error) {
	return c.idName(ctx, "custom_fields/")
}

// ListOptions selects the candidate documents. A nil TagID lists every
// document in the store.
type ListOptions struct {
	TagID *int
}

// ListDocuments returns the ids of all documents matching opts, in store
// order. Content is not fetched here; callers retrieve the full snapshot per
// document when they process it.
func (c *Client) ListDocuments(ctx context.Context, opts ListOptions) ([]int, error) {
	query := url.Values{}
	if opts.TagID != nil {
		query.Set("tags__id__all", strconv.Itoa(*opts.TagID))
	}
	var ids []int
	err := c.listAll(ctx, "documents/", query, func(raw json.RawMessage) error {
		var entries []struct {
			ID int `json:"id"`
		}
		if err := json.Unmarshal(raw, &entries); err != nil {
			return err
		}
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

type documentResponse struct {
	ID           int                       `json:"id"`
	Title        string                    `json:"title"`
	Content      string                    `json:"content"`
	Tags         []int                     `json:"tags"`
	CustomFields []models.CustomFieldValue `json:"custom_fields"`
}

// Document fetches one document snapshot including its OCR content.
func (c *Client) Document(ctx context.Context, id int) (models.Document, error) {
	var res documentResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("documents/%d/", id), nil, nil, &res); err != nil {
		return models.Document{}, err
	}
	return models.Document{
		ID:           id,
		Title:        res.Title,
		Content:      res.Content,
		Tags:         res.Tags,
		CustomFields: res.CustomFields,
	}, nil
}

// DocumentPatch is a partial update of a document. Nil fields are left
// untouched by the store, which makes repeated writes of the same patch
// idempotent.
type DocumentPatch struct {
	Title        *string
	Tags         []int
	CustomFields []models.CustomFieldValue
}

// UpdateDocument applies the patch to a single document.
func (c *Client) UpdateDocument(ctx context.Context, id int, patch DocumentPatch) error {
	payload := map[string]interface{}{}
	if patch.Title != nil {
		payload["title"] = *patch.Title
	}
	if patch.Tags != nil {
		payload["tags"] = patch.Tags
	}
	if patch.CustomFields != nil {
		payload["custom_fields"] = patch.CustomFields
	}
	if len(payload) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("documents/%d/", id), nil, payload, nil)
}

// RemoveTag removes tagID from the document's tag set. The current tag set is
// re-read first so concurrent tag edits survive, and removing an
// already-absent tag is a no-op.
func (c *Client) RemoveTag(ctx context.Context, docID, tagID int) error {
	doc, err := c.Document(ctx, docID)
	if err != nil {
		return err
	}
	if !doc.HasTag(tagID) {
		return nil
	}
	return c.UpdateDocument(ctx, docID, DocumentPatch{Tags: doc.WithoutTag(tagID)})
}
