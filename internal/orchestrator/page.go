package orchestrator

import (
	"context"
	"fmt"

	"github.com/kalambet/aether/internal/cache"
	"github.com/kalambet/aether/internal/metrics"
	"github.com/kalambet/aether/internal/prompt"
)

// PageSummary is the result of SummarizePage. Text is the extracted page
// text, truncated to the summarization input budget.
type PageSummary struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Summary string `json:"summary"`
	Text    string `json:"-"`
	Cached  bool   `json:"cached"`
}

type cachedPage struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Text    string `json:"text"`
}

// SummarizePage fetches url and summarizes its text. Results are cached
// per URL and length.
func (o *Orchestrator) SummarizePage(ctx context.Context, url string, length Length) (PageSummary, error) {
	if _, ok := summaryBudgets[length]; !ok {
		return PageSummary{}, fmt.Errorf("%q: %w", length, ErrInvalidLength)
	}

	key := cache.PageKey(url, string(length))
	var hit cachedPage
	if cache.GetJSON(ctx, o.cache, key, &hit) {
		metrics.CacheResult(cache.NamespacePage, true)
		return PageSummary{URL: url, Title: hit.Title, Summary: hit.Summary, Text: hit.Text, Cached: true}, nil
	}
	metrics.CacheResult(cache.NamespacePage, false)

	page, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		return PageSummary{}, err
	}

	summary, err := o.Summarize(ctx, page.Text, length)
	if err != nil {
		return PageSummary{}, err
	}

	text := prompt.Truncate(page.Text, MaxSummaryInputChars)
	cache.SetJSON(ctx, o.cache, key, cachedPage{Title: page.Title, Summary: summary, Text: text}, pageTTL)
	return PageSummary{URL: url, Title: page.Title, Summary: summary, Text: text}, nil
}

// Providers lists the configured providers in registry order.
func (o *Orchestrator) Providers() []string {
	ids := o.registry.Available()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// CacheMode reports the active cache backend.
func (o *Orchestrator) CacheMode() string {
	return o.cache.Mode()
}

// ClearCache removes cached entries matching a glob pattern.
func (o *Orchestrator) ClearCache(ctx context.Context, pattern string) int {
	n := o.cache.ClearPattern(ctx, pattern)
	o.logger.Info("cache cleared", "pattern", pattern, "removed", n)
	return n
}
