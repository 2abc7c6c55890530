package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kalambet/aether/internal/cache"
	"github.com/kalambet/aether/internal/metrics"
	"github.com/kalambet/aether/internal/prompt"
	"github.com/kalambet/aether/internal/provider"
	"github.com/kalambet/aether/internal/query"
)

// Length selects the size of a summary.
type Length string

const (
	Short  Length = "short"
	Medium Length = "medium"
	Long   Length = "long"
)

// MaxSummaryInputChars bounds the content sent for summarization.
const MaxSummaryInputChars = 8000

// MaxSuggestions caps SuggestQueries.
const MaxSuggestions = 5

var ErrInvalidLength = errors.New("length must be short, medium or long")

var summaryBudgets = map[Length]struct {
	tokens      int
	instruction string
}{
	Short:  {150, "Summarize the following content in 2-3 sentences. Keep only the main point."},
	Medium: {300, "Summarize the following content in one concise paragraph covering the key points."},
	Long:   {600, "Write a detailed summary of the following content with the key points as a short bulleted list."},
}

// ParseLength validates a summary length. An empty string means Medium.
func ParseLength(s string) (Length, error) {
	l := Length(strings.ToLower(strings.TrimSpace(s)))
	if l == "" {
		return Medium, nil
	}
	if _, ok := summaryBudgets[l]; !ok {
		return "", fmt.Errorf("%q: %w", s, ErrInvalidLength)
	}
	return l, nil
}

// Summarize condenses content with a single call to the default provider.
// Unlike GetResponse there is no fallback: provider errors are returned.
func (o *Orchestrator) Summarize(ctx context.Context, content string, length Length) (string, error) {
	budget, ok := summaryBudgets[length]
	if !ok {
		return "", fmt.Errorf("%q: %w", length, ErrInvalidLength)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.New("nothing to summarize")
	}

	msgs := []provider.Message{
		{Role: provider.RoleSystem, Content: budget.instruction},
		{Role: provider.RoleUser, Content: prompt.Truncate(content, MaxSummaryInputChars)},
	}
	text, err := o.call(ctx, o.registry.Default(), msgs, query.Summarization, provider.WithMaxTokens(budget.tokens))
	if err != nil {
		return "", fmt.Errorf("summarizing: %w", err)
	}
	return strings.TrimSpace(text), nil
}

const suggestInstruction = "Suggest up to 5 concise web search queries that would help with the user's goal. " +
	"Reply with one query per line and nothing else."

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)]|\(\d+\))\s*`)

// SuggestQueries proposes up to MaxSuggestions search queries for intent.
// On failure the result is the intent itself.
func (o *Orchestrator) SuggestQueries(ctx context.Context, intent string) []string {
	intent = strings.TrimSpace(intent)
	if intent == "" {
		return []string{}
	}

	key := cache.RecKey(intent)
	var hit []string
	if cache.GetJSON(ctx, o.cache, key, &hit) && len(hit) > 0 {
		metrics.CacheResult(cache.NamespaceRec, true)
		return hit
	}
	metrics.CacheResult(cache.NamespaceRec, false)

	msgs := []provider.Message{
		{Role: provider.RoleSystem, Content: suggestInstruction},
		{Role: provider.RoleUser, Content: intent},
	}
	text, err := o.call(ctx, o.registry.Default(), msgs, query.General)
	if err != nil {
		return []string{intent}
	}

	suggestions := parseSuggestions(text)
	if len(suggestions) == 0 {
		o.logger.Warn("provider returned no usable suggestions", "provider", o.registry.Default())
		return []string{intent}
	}

	cache.SetJSON(ctx, o.cache, key, suggestions, suggestionTTL)
	return suggestions
}

// parseSuggestions splits model output into lines, strips list markers and
// quotes, drops blanks and keeps at most MaxSuggestions entries.
func parseSuggestions(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = listMarker.ReplaceAllString(line, "")
		line = strings.Trim(strings.TrimSpace(line), `"'`+"`")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}
