// Package prompt builds model requests from document text. Building is a pure
// function of the document text and the builder configuration, so identical
// inputs always produce identical prompts.
package prompt

import (
	"strings"
	"unicode/utf8"
)

// instructionTemplate asks for a constrained, labeled answer so the response
// validator has fixed anchors to parse against. CURRENCY is substituted at
// build time.
const instructionTemplate = `You extract metadata from scanned documents.
Given the text of a document, answer with exactly two lines and nothing else:
Title: a short, descriptive title for the document, in the document's language
Amount: the total amount in CURRENCY if the document is an invoice or receipt, written as a plain number, or "none" if no amount applies
Do not add any commentary.`

// charsPerToken is a rough heuristic for prompt sizing against the model
// server's context limit. Titles and amounts are front-loaded in invoices and
// letters, so truncating the tail loses little.
const charsPerToken = 2.5

type BuilderConfig struct {
	// Budget is the maximum number of bytes of document text included in the
	// prompt. Zero means no truncation.
	Budget int
	// Currency substituted into the instruction text.
	Currency string
}

type Builder struct {
	config       BuilderConfig
	instructions string
}

func NewWithConfig(config BuilderConfig) Builder {
	if config.Currency == "" {
		config.Currency = "CHF"
	}
	return Builder{
		config:       config,
		instructions: Instructions(config.Currency),
	}
}

// Instructions returns the instruction text for the given currency.
func Instructions(currency string) string {
	return strings.ReplaceAll(instructionTemplate, "CURRENCY", currency)
}

// Build turns document text into a single prompt string, truncating the text
// head-first to fit the configured budget.
func (b Builder) Build(content string) string {
	content, _ = truncateHead(content, b.config.Budget)
	var sb strings.Builder
	sb.WriteString(b.instructions)
	sb.WriteString("\n\nDocument:\n")
	sb.WriteString(content)
	sb.WriteString("\n\nAnswer:\n")
	return sb.String()
}

// Truncated reports whether Build would drop part of the given text.
func (b Builder) Truncated(content string) bool {
	_, truncated := truncateHead(content, b.config.Budget)
	return truncated
}

// ContentBudget derives the document-text budget from the model server's
// context size, reserving room for the instructions and the response.
func ContentBudget(contextTokens, responseTokens int, currency string) int {
	budget := int(float64(contextTokens)*charsPerToken) -
		len(Instructions(currency)) -
		int(float64(responseTokens)*charsPerToken)
	if budget < 0 {
		return 0
	}
	return budget
}

// truncateHead keeps the head of s up to budget bytes, cutting only at a rune
// boundary. A zero or negative budget disables truncation.
func truncateHead(s string, budget int) (string, bool) {
	if budget <= 0 || len(s) <= budget {
		return s, false
	}
	cut := budget
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
