package provider

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/aether/internal/config"
)

func ollamaTagsServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestFromConfig(t *testing.T) {
	var cfg config.Config
	cfg.Providers.Default = "groq"
	cfg.Providers.GroqAPIKey = "gsk"
	cfg.Providers.AnthropicAPIKey = "ak"
	cfg.Providers.OllamaBaseURL = ollamaTagsServer(t).URL

	logger, logs := bufferLogger()
	reg, err := FromConfig(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, []ID{Groq, Anthropic, Ollama}, reg.Available())
	assert.Equal(t, Groq, reg.Default())
	assert.NotContains(t, logs.String(), "not reachable")
	assert.Equal(t, 1, bytes.Count(logs.Bytes(), []byte("providers configured")))
}

func TestFromConfig_MissingDefault(t *testing.T) {
	var cfg config.Config
	cfg.Providers.Default = "openai"
	cfg.Providers.GroqAPIKey = "gsk"

	_, err := FromConfig(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFromConfig_UnknownDefault(t *testing.T) {
	var cfg config.Config
	cfg.Providers.Default = "gemini"
	cfg.Providers.GroqAPIKey = "gsk"

	_, err := FromConfig(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown default provider "gemini"`)
}

func TestFromConfig_OllamaDownStillRegistered(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var cfg config.Config
	cfg.Providers.Default = "ollama"
	cfg.Providers.OllamaBaseURL = url

	logger, logs := bufferLogger()
	reg, err := FromConfig(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, []ID{Ollama}, reg.Available())
	assert.Contains(t, logs.String(), "ollama is not reachable")
}
