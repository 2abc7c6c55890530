package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/kalambet/aether/internal/query"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIAdapter talks to any OpenAI-compatible chat completion endpoint.
// It serves both OpenAI and Groq.
type OpenAIAdapter struct {
	desc   Descriptor
	client *openai.Client
}

// NewOpenAI creates an adapter for the OpenAI API. An empty baseURL uses
// the library default.
func NewOpenAI(apiKey, baseURL string) *OpenAIAdapter {
	return newOpenAICompatible(OpenAI, apiKey, baseURL)
}

// NewGroq creates an adapter for Groq's OpenAI-compatible endpoint.
func NewGroq(apiKey, baseURL string) *OpenAIAdapter {
	if baseURL == "" {
		baseURL = groqBaseURL
	}
	return newOpenAICompatible(Groq, apiKey, baseURL)
}

func newOpenAICompatible(id ID, apiKey, baseURL string) *OpenAIAdapter {
	desc, _ := Lookup(id)

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}

	return &OpenAIAdapter{
		desc:   desc,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

func (a *OpenAIAdapter) ID() ID { return a.desc.ID }

func (a *OpenAIAdapter) Generate(ctx context.Context, messages []Message, qt query.Type, opts ...Option) (string, error) {
	co := resolveOptions(opts)
	llmMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		llmMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       a.desc.ModelFor(qt),
		Messages:    llmMessages,
		MaxTokens:   co.MaxTokens,
		Temperature: Temperature,
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", callError(a.desc.ID, err)
	}
	if len(resp.Choices) == 0 {
		return "", callError(a.desc.ID, errors.New("empty chat response"))
	}
	return resp.Choices[0].Message.Content, nil
}
