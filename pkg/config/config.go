package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type PaperlessConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
	// RateLimit caps requests per second against the store API.
	RateLimit float64 `yaml:"rate_limit"`
	PageSize  int     `yaml:"page_size"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	// ContextSize is used for prompt budgeting when the server does not
	// advertise its context window.
	ContextSize int `yaml:"context_size"`
	// Slots must match the model server's parallel-slot count.
	Slots          int `yaml:"slots"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type PipelineConfig struct {
	// Tag is the marker tag name signaling "needs processing".
	Tag string `yaml:"tag"`
	// AmountField is the name of the custom field receiving the amount.
	AmountField    string `yaml:"amount_field"`
	Currency       string `yaml:"currency"`
	MaxAttempts    int    `yaml:"max_attempts"`
	RetryBaseMs    int    `yaml:"retry_base_ms"`
	KeepTagOnEmpty bool   `yaml:"keep_tag_on_empty"`
	MaxTitleLen    int    `yaml:"max_title_len"`
}

type CacheConfig struct {
	// URL enables the optional Postgres outcome cache when set.
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
}

type Config struct {
	Paperless PaperlessConfig `yaml:"paperless"`
	LLM       LLMConfig       `yaml:"llm"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Cache     CacheConfig     `yaml:"cache"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"paperless-llm.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/paperless-llm/config.yaml"),
			"/etc/paperless-llm/config.yaml",
		}
		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() *Config {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.Paperless.RateLimit == 0 {
		config.Paperless.RateLimit = 10
	}
	if config.Paperless.PageSize == 0 {
		config.Paperless.PageSize = 100
	}

	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:8080"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 100
	}
	if config.LLM.ContextSize == 0 {
		config.LLM.ContextSize = 4096
	}
	if config.LLM.Slots == 0 {
		config.LLM.Slots = 4
	}
	if config.LLM.TimeoutSeconds == 0 {
		config.LLM.TimeoutSeconds = 120
	}

	if config.Pipeline.Tag == "" {
		config.Pipeline.Tag = "llm-process"
	}
	if config.Pipeline.AmountField == "" {
		config.Pipeline.AmountField = "Amount"
	}
	if config.Pipeline.Currency == "" {
		config.Pipeline.Currency = "CHF"
	}
	if config.Pipeline.MaxAttempts == 0 {
		config.Pipeline.MaxAttempts = 3
	}
	if config.Pipeline.RetryBaseMs == 0 {
		config.Pipeline.RetryBaseMs = 500
	}
	if config.Pipeline.MaxTitleLen == 0 {
		config.Pipeline.MaxTitleLen = 128
	}

	if config.Cache.TableName == "" {
		config.Cache.TableName = "extractions"
	}
}

func mergeWithEnv(config *Config) {
	if v := os.Getenv("PAPERLESS_URL"); v != "" {
		config.Paperless.URL = v
	}
	if v := os.Getenv("PAPERLESS_TOKEN"); v != "" {
		config.Paperless.Token = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		config.LLM.BaseURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Cache.URL = v
	}
}
