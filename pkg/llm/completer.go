// Package llm wraps a single-request text-completion endpoint served by a
// local llama.cpp server over its OpenAI-compatible API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	// ErrUnavailable is returned when the model server cannot be reached.
	ErrUnavailable = errors.New("llm: server unavailable")
	// ErrTimeout is returned when a completion exceeds the configured deadline.
	ErrTimeout = errors.New("llm: request timed out")
	// ErrInference is returned on a non-success response from the endpoint.
	ErrInference = errors.New("llm: inference request failed")
)

type CompleterConfig struct {
	// BaseURL is the model server root, e.g. http://localhost:8080.
	BaseURL string
	Model   string
	// MaxTokens bounds the generated response size.
	MaxTokens   int
	Temperature float64
	// Timeout is the per-request deadline.
	Timeout time.Duration
	// Slots bounds in-flight requests to the server's configured
	// parallel-slot count. Exceeding it would not corrupt results, only
	// degrade latency, so the bound is enforced here once for all callers.
	Slots int
}

type Completer struct {
	config CompleterConfig
	llm    llms.Model
	client *http.Client
	slots  chan struct{}
}

func NewWithConfig(config CompleterConfig) (*Completer, error) {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 100
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.Slots == 0 {
		config.Slots = 4
	}

	model, err := openai.New(
		openai.WithBaseURL(apiBase(config.BaseURL)),
		// llama.cpp does not check the token, but the client requires one.
		openai.WithToken("unused"),
		openai.WithModel(config.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize completion client: %w", err)
	}

	return &Completer{
		config: config,
		llm:    model,
		client: &http.Client{Timeout: config.Timeout},
		slots:  make(chan struct{}, config.Slots),
	}, nil
}

// apiBase appends the OpenAI-compatible prefix to the server root.
func apiBase(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

// Slots returns the configured parallel-request bound.
func (c *Completer) Slots() int {
	return c.config.Slots
}

// Complete sends one prompt and returns the raw generated text. No retries
// happen here; retry policy belongs to the caller.
func (c *Completer) Complete(ctx context.Context, promptText string) (string, error) {
	select {
	case c.slots <- struct{}{}:
		defer func() { <-c.slots }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	out, err := llms.GenerateFromSinglePrompt(ctx, c.llm, promptText,
		llms.WithMaxTokens(c.config.MaxTokens),
		llms.WithTemperature(c.config.Temperature),
	)
	if err != nil {
		return "", classify(err)
	}
	return out, nil
}

// classify maps transport-level failures onto the package sentinels so the
// caller can tell retryable conditions from hard inference errors.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrInference, err)
}

// ServerInfo describes the reachable model server.
type ServerInfo struct {
	// Model is the first model advertised by the server.
	Model string
	// ContextSize is the server's context window in tokens, when it exposes
	// one through the llama.cpp props endpoint. Zero when unknown.
	ContextSize int
}

// Ping verifies connectivity at startup and probes the served model and its
// context size. A failure here is fatal to the run.
func (c *Completer) Ping(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo

	var modelList struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.get(ctx, apiBase(c.config.BaseURL)+"/models", &modelList); err != nil {
		return info, err
	}
	if len(modelList.Data) == 0 {
		return info, fmt.Errorf("%w: server advertises no models", ErrInference)
	}
	info.Model = modelList.Data[0].ID

	// llama.cpp specific; absence is not an error.
	var props struct {
		DefaultGenerationSettings struct {
			NCtx int `json:"n_ctx"`
		} `json:"default_generation_settings"`
	}
	if err := c.get(ctx, strings.TrimRight(c.config.BaseURL, "/")+"/props", &props); err == nil {
		info.ContextSize = props.DefaultGenerationSettings.NCtx
	}

	return info, nil
}

func (c *Completer) get(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d for %s", ErrInference, resp.StatusCode, rawURL)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
