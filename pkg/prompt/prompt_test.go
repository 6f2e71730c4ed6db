package prompt_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/cpg314/paperless-llm/pkg/prompt"
)

func TestBuildDeterministic(t *testing.T) {
	b := prompt.NewWithConfig(prompt.BuilderConfig{Budget: 100, Currency: "CHF"})

	first := b.Build("INVOICE #552, Total Due: 1.234,56 CHF")
	second := b.Build("INVOICE #552, Total Due: 1.234,56 CHF")
	assert.Equal(t, first, second)
	assert.Contains(t, first, "INVOICE #552")
	assert.Contains(t, first, "Title:")
	assert.Contains(t, first, "Amount:")
}

func TestBuildCurrencySubstitution(t *testing.T) {
	b := prompt.NewWithConfig(prompt.BuilderConfig{Currency: "EUR"})

	p := b.Build("some document")
	assert.Contains(t, p, "EUR")
	assert.NotContains(t, p, "CURRENCY")
}

func TestBuildTruncatesHead(t *testing.T) {
	head := strings.Repeat("a", 50)
	tail := strings.Repeat("z", 50)
	b := prompt.NewWithConfig(prompt.BuilderConfig{Budget: 50})

	p := b.Build(head + tail)
	assert.Contains(t, p, head)
	assert.NotContains(t, p, "z")
	assert.True(t, b.Truncated(head+tail))
	assert.False(t, b.Truncated(head))
}

func TestBuildTruncatesAtRuneBoundary(t *testing.T) {
	// 2-byte runes with an odd byte budget force a mid-rune cut.
	content := strings.Repeat("é", 40)
	b := prompt.NewWithConfig(prompt.BuilderConfig{Budget: 9})

	p := b.Build(content)
	assert.True(t, utf8.ValidString(p))
	assert.Contains(t, p, "éééé")
}

func TestBuildNoBudgetKeepsEverything(t *testing.T) {
	content := strings.Repeat("x", 10000)
	b := prompt.NewWithConfig(prompt.BuilderConfig{})

	assert.Contains(t, b.Build(content), content)
	assert.False(t, b.Truncated(content))
}

func TestContentBudget(t *testing.T) {
	budget := prompt.ContentBudget(4096, 100, "CHF")
	assert.Greater(t, budget, 0)
	assert.Less(t, budget, int(4096*2.5))

	// A tiny context never yields a negative budget.
	assert.Equal(t, 0, prompt.ContentBudget(10, 100, "CHF"))
}
