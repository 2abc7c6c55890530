package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/aether/internal/query"
)

// OllamaAdapter talks to a local Ollama instance over HTTP.
type OllamaAdapter struct {
	desc       Descriptor
	baseURL    string
	httpClient *http.Client
}

func NewOllama(baseURL string) *OllamaAdapter {
	desc, _ := Lookup(Ollama)
	return &OllamaAdapter{
		desc:    desc,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0,
		},
	}
}

// ollamaChatRequest is the JSON body for POST /api/chat.
type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

// ollamaChatResponse is the JSON returned by POST /api/chat (non-streaming).
type ollamaChatResponse struct {
	Message Message `json:"message"`
}

func (a *OllamaAdapter) ID() ID { return Ollama }

// IsRunning returns true if the Ollama server responds to GET /api/tags with 200.
func (a *OllamaAdapter) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (a *OllamaAdapter) Generate(ctx context.Context, messages []Message, qt query.Type, opts ...Option) (string, error) {
	co := resolveOptions(opts)
	body, err := json.Marshal(ollamaChatRequest{
		Model:    a.desc.ModelFor(qt),
		Messages: messages,
		Stream:   false,
		Options:  ollamaOptions{Temperature: Temperature, NumPredict: co.MaxTokens},
	})
	if err != nil {
		return "", callError(Ollama, fmt.Errorf("marshaling chat request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", callError(Ollama, fmt.Errorf("creating chat request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", callError(Ollama, fmt.Errorf("sending chat request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", callError(Ollama, fmt.Errorf("chat: unexpected status %d: %s", resp.StatusCode, string(data)))
	}

	var cr ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", callError(Ollama, fmt.Errorf("decoding chat response: %w", err))
	}
	return cr.Message.Content, nil
}
