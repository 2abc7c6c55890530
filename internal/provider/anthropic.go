package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/aether/internal/query"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// AnthropicAdapter calls the Anthropic Messages API. System messages are
// lifted out of the flat message list into the request's system field.
type AnthropicAdapter struct {
	desc       Descriptor
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewAnthropic(apiKey, baseURL string) *AnthropicAdapter {
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	desc, _ := Lookup(Anthropic)
	return &AnthropicAdapter{
		desc:       desc,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *AnthropicAdapter) ID() ID { return Anthropic }

func (a *AnthropicAdapter) Generate(ctx context.Context, messages []Message, qt query.Type, opts ...Option) (string, error) {
	co := resolveOptions(opts)
	system, turns := splitSystem(messages)
	if len(turns) == 0 {
		return "", callError(Anthropic, errors.New("no user or assistant messages"))
	}

	payload := anthropicRequest{
		Model:       a.desc.ModelFor(qt),
		Messages:    turns,
		System:      system,
		MaxTokens:   co.MaxTokens,
		Temperature: Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", callError(Anthropic, fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", callError(Anthropic, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", callError(Anthropic, fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr anthropicErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", callError(Anthropic, fmt.Errorf("unexpected status %d: %s: %s", resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message))
		}
		return "", callError(Anthropic, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data)))
	}

	var ar anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", callError(Anthropic, fmt.Errorf("decoding response: %w", err))
	}

	var sb strings.Builder
	for _, c := range ar.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String(), nil
}

// splitSystem joins every system message into one string and converts the
// remaining turns, merging consecutive turns of the same role since the
// Messages API requires alternation.
func splitSystem(messages []Message) (string, []anthropicMessage) {
	var systemParts []string
	out := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		role := RoleUser
		if msg.Role == RoleAssistant {
			role = RoleAssistant
		}
		block := anthropicContent{Type: "text", Text: msg.Content}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, block)
			continue
		}
		out = append(out, anthropicMessage{Role: role, Content: []anthropicContent{block}})
	}
	return strings.Join(systemParts, "\n\n"), out
}
