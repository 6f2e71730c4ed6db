// Package extract parses free-text model responses into typed extraction
// fields. Model output is best-effort: the parser tolerates commentary around
// the expected labels, reordered lines, and locale-dependent number formats.
package extract

import (
	"strconv"
	"strings"

	"github.com/cpg314/paperless-llm/internal/models"
)

const (
	titleLabel  = "Title:"
	amountLabel = "Amount:"
)

// Markers the model may use to signal that no amount applies.
var noAmountMarkers = map[string]bool{
	"":     true,
	"-":    true,
	"none": true,
	"n/a":  true,
	"null": true,
}

type ValidatorConfig struct {
	// MaxTitleLen rejects absurdly long titles as likely model failure.
	MaxTitleLen int
}

type Validator struct {
	config ValidatorConfig
}

func NewWithConfig(config ValidatorConfig) Validator {
	if config.MaxTitleLen == 0 {
		config.MaxTitleLen = 128
	}
	return Validator{config: config}
}

func New() Validator {
	return NewWithConfig(ValidatorConfig{})
}

// Parse locates the labeled fields anywhere in the raw response and validates
// them. A response with no parseable fields yields a result whose fields are
// all absent; that is a "nothing to apply" outcome, not an error.
func (v Validator) Parse(raw string) models.ExtractionResult {
	var result models.ExtractionResult
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.Trim(line, "`*_")
		line = strings.TrimSpace(line)

		if rest, ok := cutLabel(line, titleLabel); ok && result.Title.State == models.FieldAbsent {
			result.Title = v.parseTitle(rest)
			continue
		}
		if rest, ok := cutLabel(line, amountLabel); ok && result.Amount.State == models.FieldAbsent {
			result.Amount = parseAmount(rest)
		}
	}
	return result
}

// cutLabel strips a case-insensitive field label from the start of a line.
// Emphasis markers around the label ("**Title:** ...") leave a residue after
// the label itself, so they are stripped from the remainder too.
func cutLabel(line, label string) (string, bool) {
	if len(line) < len(label) || !strings.EqualFold(line[:len(label)], label) {
		return "", false
	}
	rest := strings.TrimLeft(line[len(label):], "`*_ \t")
	return strings.TrimSpace(rest), true
}

func (v Validator) parseTitle(s string) models.TitleField {
	s = strings.TrimSpace(strings.Trim(s, `"'`))
	if s == "" {
		return models.TitleField{State: models.FieldAbsent}
	}
	if len(s) > v.config.MaxTitleLen {
		return models.TitleField{State: models.FieldInvalid}
	}
	return models.TitleField{State: models.FieldValid, Value: s}
}

func parseAmount(s string) models.AmountField {
	if noAmountMarkers[strings.ToLower(strings.TrimSpace(s))] {
		return models.AmountField{State: models.FieldAbsent}
	}
	value, ok := normalizeAmount(s)
	if !ok {
		// A value was present but did not parse. Mark it invalid rather
		// than defaulting to zero.
		return models.AmountField{State: models.FieldInvalid}
	}
	return models.AmountField{State: models.FieldValid, Value: value}
}

// normalizeAmount parses a monetary amount written with varying decimal and
// thousands separators or surrounding currency symbols, e.g. "1,234.56",
// "1.234,56", "CHF 1234.56" all yield 1234.56.
func normalizeAmount(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if strings.Trim(cleaned, "-.,") == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			// 1,234.56
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			// 1.234,56
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		}
	case lastComma >= 0:
		// A single trailing group of one or two digits reads as a decimal
		// mark; anything else is a thousands separator.
		if strings.Count(cleaned, ",") == 1 && len(cleaned)-lastComma-1 <= 2 {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case strings.Count(cleaned, ".") > 1:
		// 1.234.567 style grouping
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
