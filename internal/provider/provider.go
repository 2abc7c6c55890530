// Package provider normalizes chat-completion providers behind one adapter
// interface and picks the best configured provider for a query type.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/aether/internal/query"
)

// ID names a provider.
type ID string

const (
	Groq       ID = "groq"
	OpenAI     ID = "openai"
	Anthropic  ID = "anthropic"
	OpenRouter ID = "openrouter"
	Ollama     ID = "ollama"
)

// Every adapter call uses the same output budget and temperature.
const (
	MaxTokens   = 1500
	Temperature = 0.7
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in the flat role/content form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Adapter generates a completion from one provider.
type Adapter interface {
	ID() ID
	Generate(ctx context.Context, messages []Message, qt query.Type, opts ...Option) (string, error)
}

// CallOptions are per-call overrides of the adapter defaults.
type CallOptions struct {
	MaxTokens int
}

type Option func(*CallOptions)

// WithMaxTokens lowers the output budget for one call. Values outside
// (0, MaxTokens] are ignored.
func WithMaxTokens(n int) Option {
	return func(o *CallOptions) {
		if n > 0 && n <= MaxTokens {
			o.MaxTokens = n
		}
	}
}

func resolveOptions(opts []Option) CallOptions {
	o := CallOptions{MaxTokens: MaxTokens}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

var (
	// ErrUnavailable is returned when a provider is requested but was not
	// configured at startup.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrCallFailed matches every *CallError.
	ErrCallFailed = errors.New("provider call failed")
)

// CallError wraps a failed provider call.
type CallError struct {
	Provider ID
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Is(target error) bool { return target == ErrCallFailed }

func callError(id ID, err error) error {
	return &CallError{Provider: id, Err: err}
}

// Descriptor is the static registry entry of a provider. Models are
// ordered fast first, capable second; Strengths are ordered from
// strongest to weakest.
type Descriptor struct {
	ID        ID
	Models    []string
	Strengths []query.Type
}

// ModelFor returns the capable model for creative, code and technical
// queries and the fast model otherwise.
func (d Descriptor) ModelFor(qt query.Type) string {
	if len(d.Models) == 0 {
		return ""
	}
	switch qt {
	case query.Creative, query.Code, query.Technical:
		if len(d.Models) > 1 {
			return d.Models[1]
		}
	}
	return d.Models[0]
}

// Score is len(Strengths) minus the position of qt, or 0 when qt is not
// a strength.
func (d Descriptor) Score(qt query.Type) int {
	for i, s := range d.Strengths {
		if s == qt {
			return len(d.Strengths) - i
		}
	}
	return 0
}

var descriptors = []Descriptor{
	{
		ID:        Groq,
		Models:    []string{"llama-3.1-8b-instant", "llama-3.3-70b-versatile"},
		Strengths: []query.Type{query.General, query.Translation},
	},
	{
		ID:        OpenAI,
		Models:    []string{"gpt-4o-mini", "gpt-4o"},
		Strengths: []query.Type{query.Technical, query.Code, query.General, query.Summarization},
	},
	{
		ID:        Anthropic,
		Models:    []string{"claude-3-5-haiku-latest", "claude-3-5-sonnet-latest"},
		Strengths: []query.Type{query.Creative, query.Summarization, query.Code, query.Technical},
	},
	{
		ID:        OpenRouter,
		Models:    []string{"meta-llama/llama-3.1-8b-instruct", "anthropic/claude-3.5-sonnet"},
		Strengths: []query.Type{query.Translation, query.Creative},
	},
	{
		ID:        Ollama,
		Models:    []string{"llama3.2", "qwen2.5-coder"},
		Strengths: []query.Type{query.Code},
	},
}

// Descriptors returns a copy of the full registry table in registry order.
func Descriptors() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	for i, d := range descriptors {
		out[i] = Descriptor{
			ID:        d.ID,
			Models:    append([]string(nil), d.Models...),
			Strengths: append([]query.Type(nil), d.Strengths...),
		}
	}
	return out
}

// Lookup returns the descriptor for id.
func Lookup(id ID) (Descriptor, bool) {
	for _, d := range Descriptors() {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// ParseID converts a string into a known provider ID.
func ParseID(s string) (ID, bool) {
	for _, d := range descriptors {
		if string(d.ID) == s {
			return d.ID, true
		}
	}
	return "", false
}
