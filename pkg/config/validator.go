package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Paperless.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "paperless.url",
			Message: "paperless URL is required",
		})
	} else if _, err := url.Parse(c.Paperless.URL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "paperless.url",
			Message: "invalid paperless URL",
		})
	}

	if c.Paperless.Token == "" {
		errors = append(errors, ValidationError{
			Field:   "paperless.token",
			Message: "paperless API token is required",
		})
	}

	if c.Paperless.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "paperless.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid model server URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.Slots < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.slots",
			Message: "slots must be positive",
		})
	}

	if c.Pipeline.Tag == "" {
		errors = append(errors, ValidationError{
			Field:   "pipeline.tag",
			Message: "marker tag name is required",
		})
	}

	if c.Pipeline.AmountField == "" {
		errors = append(errors, ValidationError{
			Field:   "pipeline.amount_field",
			Message: "amount field name is required",
		})
	}

	if c.Pipeline.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.max_attempts",
			Message: "max_attempts must be positive",
		})
	}

	return errors
}
