package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/aether/internal/query"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout    = 60 * time.Second
	maxRetries        = 3
	initialBackoff    = 500 * time.Millisecond
)

// OpenRouterAdapter communicates with the OpenRouter API. HTTP 429
// responses are retried with exponential backoff; every other failure is
// returned immediately.
type OpenRouterAdapter struct {
	desc       Descriptor
	apiKey     string
	baseURL    string
	httpClient *http.Client
	referer    string
	title      string
}

// NewOpenRouter creates an OpenRouter adapter. An empty baseURL uses the
// public endpoint.
func NewOpenRouter(apiKey, baseURL string) *OpenRouterAdapter {
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	desc, _ := Lookup(OpenRouter)
	return &OpenRouterAdapter{
		desc:    desc,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		referer: "https://github.com/kalambet/aether",
		title:   "aether",
	}
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func (a *OpenRouterAdapter) ID() ID { return OpenRouter }

func (a *OpenRouterAdapter) Generate(ctx context.Context, messages []Message, qt query.Type, opts ...Option) (string, error) {
	co := resolveOptions(opts)
	body, err := json.Marshal(chatCompletionRequest{
		Model:       a.desc.ModelFor(qt),
		Messages:    messages,
		MaxTokens:   co.MaxTokens,
		Temperature: Temperature,
	})
	if err != nil {
		return "", callError(OpenRouter, fmt.Errorf("marshaling request: %w", err))
	}

	var lastErr error
	for attempt := range maxRetries {
		text, err := a.doChat(ctx, body)
		if err == nil {
			return text, nil
		}

		if !isRateLimit(err) {
			return "", callError(OpenRouter, err)
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", callError(OpenRouter, ctx.Err())
			case <-time.After(backoff):
			}
		}
	}

	return "", callError(OpenRouter, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr))
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

func (a *OpenRouterAdapter) doChat(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	a.setHeaders(httpReq)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &rateLimitError{status: resp.StatusCode}
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var cr chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("empty chat response")
	}
	return cr.Choices[0].Message.Content, nil
}

func (a *OpenRouterAdapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("HTTP-Referer", a.referer)
	req.Header.Set("X-Title", a.title)
}
