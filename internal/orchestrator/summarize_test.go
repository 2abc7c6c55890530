package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/aether/internal/cache"
	"github.com/kalambet/aether/internal/provider"
	"github.com/kalambet/aether/internal/query"
	"github.com/kalambet/aether/internal/web"
)

func TestParseLength(t *testing.T) {
	tests := []struct {
		in      string
		want    Length
		wantErr bool
	}{
		{"short", Short, false},
		{"MEDIUM", Medium, false},
		{" long ", Long, false},
		{"", Medium, false},
		{"tiny", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLength(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidLength, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSummarizeBudgets(t *testing.T) {
	groq := &fakeAdapter{id: provider.Groq, text: " a summary "}
	h := newHarness(t, provider.Groq, nil, groq)

	for length, tokens := range map[Length]int{Short: 150, Medium: 300, Long: 600} {
		got, err := h.orch.Summarize(context.Background(), "Some long article text.", length)
		require.NoError(t, err)
		assert.Equal(t, "a summary", got)

		call := groq.lastCall()
		assert.Equal(t, tokens, call.opts.MaxTokens, length)
		assert.Equal(t, query.Summarization, call.qt)
		require.Len(t, call.messages, 2)
		assert.Equal(t, provider.RoleSystem, call.messages[0].Role)
	}
}

func TestSummarizeTruncatesInput(t *testing.T) {
	groq := &fakeAdapter{id: provider.Groq, text: "ok"}
	h := newHarness(t, provider.Groq, nil, groq)

	_, err := h.orch.Summarize(context.Background(), strings.Repeat("é", MaxSummaryInputChars+500), Short)
	require.NoError(t, err)
	assert.Equal(t, MaxSummaryInputChars, len([]rune(groq.lastCall().messages[1].Content)))
}

func TestSummarizeUsesDefaultOnly(t *testing.T) {
	groq := &fakeAdapter{id: provider.Groq, err: errors.New("down")}
	anthropic := &fakeAdapter{id: provider.Anthropic, text: "never used"}
	h := newHarness(t, provider.Groq, nil, groq, anthropic)

	_, err := h.orch.Summarize(context.Background(), "text", Medium)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrCallFailed)
	assert.Equal(t, 0, anthropic.callCount())
}

func TestSummarizeRejectsBadInput(t *testing.T) {
	groq := &fakeAdapter{id: provider.Groq, text: "ok"}
	h := newHarness(t, provider.Groq, nil, groq)

	_, err := h.orch.Summarize(context.Background(), "text", Length("huge"))
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = h.orch.Summarize(context.Background(), "   ", Short)
	assert.Error(t, err)
	assert.Equal(t, 0, groq.callCount())
}

func TestParseSuggestions(t *testing.T) {
	text := "1. golang generics tutorial\n" +
		"2) go type parameters\n" +
		"\n" +
		"- \"go constraints package\"\n" +
		"* generic functions go\n" +
		"• go 1.18 release notes\n" +
		"(6) one too many\n"

	got := parseSuggestions(text)
	assert.Equal(t, []string{
		"golang generics tutorial",
		"go type parameters",
		"go constraints package",
		"generic functions go",
		"go 1.18 release notes",
	}, got)
}

func TestSuggestQueries(t *testing.T) {
	groq := &fakeAdapter{id: provider.Groq, text: "1. first query\n2. second query"}
	h := newHarness(t, provider.Groq, nil, groq)

	got := h.orch.SuggestQueries(context.Background(), "learn go")
	assert.Equal(t, []string{"first query", "second query"}, got)

	// Served from the rec: cache.
	got = h.orch.SuggestQueries(context.Background(), "learn go")
	assert.Equal(t, []string{"first query", "second query"}, got)
	assert.Equal(t, 1, groq.callCount())

	h.clock.Advance(time.Hour)
	h.orch.SuggestQueries(context.Background(), "learn go")
	assert.Equal(t, 2, groq.callCount())
}

func TestSuggestQueriesFailure(t *testing.T) {
	groq := &fakeAdapter{id: provider.Groq, err: errors.New("down")}
	h := newHarness(t, provider.Groq, nil, groq)

	got := h.orch.SuggestQueries(context.Background(), "learn go")
	assert.Equal(t, []string{"learn go"}, got)
	assert.Equal(t, 0, h.store.Len())
}

func TestSuggestQueriesBlankOutput(t *testing.T) {
	groq := &fakeAdapter{id: provider.Groq, text: "1.\n-\n"}
	h := newHarness(t, provider.Groq, nil, groq)

	assert.Equal(t, []string{"learn go"}, h.orch.SuggestQueries(context.Background(), "learn go"))
	assert.Equal(t, 0, h.store.Len())
}

func TestSummarizePage(t *testing.T) {
	groq := &fakeAdapter{id: provider.Groq, text: "page summary"}
	fetcher := &fakeFetcher{page: web.Page{Title: "Tides", Text: "The moon pulls the oceans."}}
	h := newHarness(t, provider.Groq, fetcher, groq)
	url := "https://example.com/tides"

	got, err := h.orch.SummarizePage(context.Background(), url, Short)
	require.NoError(t, err)
	assert.Equal(t, url, got.URL)
	assert.Equal(t, "Tides", got.Title)
	assert.Equal(t, "page summary", got.Summary)
	assert.Equal(t, "The moon pulls the oceans.", got.Text)
	assert.False(t, got.Cached)

	again, err := h.orch.SummarizePage(context.Background(), url, Short)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, got.Summary, again.Summary)
	assert.Equal(t, 1, fetcher.calls)

	// A different length is a separate entry.
	_, err = h.orch.SummarizePage(context.Background(), url, Long)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)

	assert.Equal(t, 2, h.orch.ClearCache(context.Background(), cache.NamespacePage+":*"))
}

func TestSummarizePageErrors(t *testing.T) {
	groq := &fakeAdapter{id: provider.Groq, text: "ok"}
	fetcher := &fakeFetcher{err: web.ErrUnsupportedContent}
	h := newHarness(t, provider.Groq, fetcher, groq)

	_, err := h.orch.SummarizePage(context.Background(), "https://example.com/a.zip", Medium)
	assert.ErrorIs(t, err, web.ErrUnsupportedContent)
	assert.Equal(t, 0, groq.callCount())

	_, err = h.orch.SummarizePage(context.Background(), "https://example.com", Length("x"))
	assert.ErrorIs(t, err, ErrInvalidLength)

	failing := &fakeAdapter{id: provider.Groq, err: errors.New("down")}
	h = newHarness(t, provider.Groq, &fakeFetcher{page: web.Page{Text: "body"}}, failing)
	_, err = h.orch.SummarizePage(context.Background(), "https://example.com", Medium)
	assert.ErrorIs(t, err, provider.ErrCallFailed)
	assert.Equal(t, 0, h.store.Len())
}
