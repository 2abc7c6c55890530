// Package prompt assembles the message sequence sent to a provider for one
// chat request.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/aether/internal/provider"
	"github.com/kalambet/aether/internal/query"
)

const (
	// MaxHistoryTurns is how many trailing history turns are forwarded.
	MaxHistoryTurns = 25
	// MaxContextChars bounds the page context injected as a system message.
	MaxContextChars = 2000
)

// Input is everything the builder needs for one request.
type Input struct {
	Message   string
	Context   string
	History   []provider.Message
	Language  string
	QueryType query.Type
}

var styleGuidance = map[query.Type]string{
	query.General:       "Answer clearly and concisely.",
	query.Technical:     "Be precise. Explain the mechanism and name the relevant concepts.",
	query.Creative:      "Be imaginative and expressive while staying on topic.",
	query.Summarization: "Extract the key points and keep the answer short.",
	query.Translation:   "Translate faithfully and preserve tone. Do not add commentary.",
	query.Code:          "Give working code in fenced blocks and explain only what is necessary.",
}

// Build returns, in order: a system message with language, query type and
// style guidance; the last MaxHistoryTurns history turns; a system message
// carrying the page context when present; and the user message.
func Build(in Input) []provider.Message {
	history := RecentHistory(in.History)
	msgs := make([]provider.Message, 0, len(history)+3)

	msgs = append(msgs, provider.Message{
		Role:    provider.RoleSystem,
		Content: systemPrompt(in.Language, in.QueryType),
	})

	for _, h := range history {
		role := h.Role
		if role != provider.RoleUser && role != provider.RoleAssistant && role != provider.RoleSystem {
			role = provider.RoleUser
		}
		msgs = append(msgs, provider.Message{Role: role, Content: h.Content})
	}

	if ctx := strings.TrimSpace(in.Context); ctx != "" {
		msgs = append(msgs, provider.Message{
			Role:    provider.RoleSystem,
			Content: "Context from the current page:\n" + Truncate(ctx, MaxContextChars),
		})
	}

	msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: in.Message})
	return msgs
}

// RecentHistory returns the trailing MaxHistoryTurns turns of history.
func RecentHistory(history []provider.Message) []provider.Message {
	if len(history) > MaxHistoryTurns {
		return history[len(history)-MaxHistoryTurns:]
	}
	return history
}

func systemPrompt(lang string, qt query.Type) string {
	if lang == "" {
		lang = query.FallbackLanguage
	}
	if qt == "" {
		qt = query.General
	}
	guidance, ok := styleGuidance[qt]
	if !ok {
		guidance = styleGuidance[query.General]
	}
	return fmt.Sprintf("You are Aether, an assistant built into a web browser. "+
		"Respond in the language with ISO 639-1 code %q. "+
		"The request was classified as %s. %s", lang, qt, guidance)
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(msgs []provider.Message) int {
	total := 0
	for _, m := range msgs {
		total += (len(m.Content) + 3) / 4
	}
	return total
}
