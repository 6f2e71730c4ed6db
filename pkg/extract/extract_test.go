package extract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cpg314/paperless-llm/internal/models"
	"github.com/cpg314/paperless-llm/pkg/extract"
)

func TestParseCanonical(t *testing.T) {
	v := extract.New()

	result := v.Parse("Title: Invoice 552\nAmount: 1234.56")
	assert.Equal(t, models.FieldValid, result.Title.State)
	assert.Equal(t, "Invoice 552", result.Title.Value)
	assert.Equal(t, models.FieldValid, result.Amount.State)
	assert.Equal(t, 1234.56, result.Amount.Value)
}

func TestParseRobustness(t *testing.T) {
	v := extract.New()
	canonical := v.Parse("Title: Invoice 552\nAmount: 1234.56")

	// Reordered fields and surrounding commentary must yield the same result
	// as the minimally-formatted canonical response.
	variants := []string{
		"Amount: 1234.56\nTitle: Invoice 552",
		"Sure! Here is the extracted data:\n\nTitle: Invoice 552\nAmount: 1234.56\n\nLet me know if you need anything else.",
		"```\nTitle: Invoice 552\nAmount: 1234.56\n```",
		"**Title:** Invoice 552\n**Amount:** 1234.56",
		"**Title:** **Invoice 552**\n**Amount:** **1234.56**",
		"  title: Invoice 552\n  amount: 1234.56  ",
	}
	for _, raw := range variants {
		assert.Equal(t, canonical, v.Parse(raw), "input: %q", raw)
	}
}

func TestParseBoldLabelKeepsValueClean(t *testing.T) {
	v := extract.New()

	result := v.Parse("**Title:** Invoice 552\n**Amount:** 1234.56")
	assert.Equal(t, "Invoice 552", result.Title.Value)
	assert.Equal(t, 1234.56, result.Amount.Value)
}

func TestParseFirstLabelWins(t *testing.T) {
	v := extract.New()

	result := v.Parse("Title: First\nTitle: Second\nAmount: 10\nAmount: 20")
	assert.Equal(t, "First", result.Title.Value)
	assert.Equal(t, 10.0, result.Amount.Value)
}

func TestParseMissingFields(t *testing.T) {
	v := extract.New()

	result := v.Parse("Title: Letter from the bank")
	assert.Equal(t, models.FieldValid, result.Title.State)
	assert.Equal(t, models.FieldAbsent, result.Amount.State)

	result = v.Parse("I could not find anything useful in this document.")
	assert.Equal(t, models.FieldAbsent, result.Title.State)
	assert.Equal(t, models.FieldAbsent, result.Amount.State)
	assert.False(t, result.HasValidField())
}

func TestParseNoAmountSignal(t *testing.T) {
	v := extract.New()

	for _, raw := range []string{
		"Title: Letter\nAmount: none",
		"Title: Letter\nAmount: -",
		"Title: Letter\nAmount: N/A",
		"Title: Letter\nAmount:",
	} {
		result := v.Parse(raw)
		assert.Equal(t, models.FieldAbsent, result.Amount.State, "input: %q", raw)
	}
}

func TestParseInvalidAmount(t *testing.T) {
	v := extract.New()

	result := v.Parse("Title: Letter\nAmount: forty-two francs")
	assert.Equal(t, models.FieldInvalid, result.Amount.State)
	// Invalid, not silently zero.
	assert.Equal(t, 0.0, result.Amount.Value)
	// The invalid amount must not poison the title.
	assert.Equal(t, models.FieldValid, result.Title.State)
}

func TestParseOverlongTitle(t *testing.T) {
	v := extract.NewWithConfig(extract.ValidatorConfig{MaxTitleLen: 16})

	result := v.Parse("Title: this title is far too long to be plausible\nAmount: 10")
	assert.Equal(t, models.FieldInvalid, result.Title.State)
	assert.Equal(t, models.FieldValid, result.Amount.State)
}

func TestAmountNormalization(t *testing.T) {
	v := extract.New()

	tests := []struct {
		input string
		want  float64
	}{
		{"1,234.56", 1234.56},
		{"1.234,56", 1234.56},
		{"1234.56", 1234.56},
		{"1'234.56", 1234.56},
		{"CHF 1.234,56", 1234.56},
		{"$1,234.56", 1234.56},
		{"12,50", 12.50},
		{"1.234.567,89", 1234567.89},
		{"1.234.567", 1234567},
		{"12,345,678", 12345678},
		{"42", 42},
		{"-15.20", -15.20},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := v.Parse("Title: x\nAmount: " + tt.input)
			assert.Equal(t, models.FieldValid, result.Amount.State)
			assert.Equal(t, tt.want, result.Amount.Value)
		})
	}
}

func TestParseQuotedTitle(t *testing.T) {
	v := extract.New()

	result := v.Parse(`Title: "Invoice 552"` + "\nAmount: none")
	assert.Equal(t, "Invoice 552", result.Title.Value)
}
