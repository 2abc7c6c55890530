package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

// account is the secret-store account name: the last segment of the key.
func (s keySpec) account() string {
	if i := strings.LastIndex(s.key, "."); i >= 0 {
		return s.key[i+1:]
	}
	return s.key
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "AETHER_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "AETHER_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "AETHER_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "cache.redis_url", typ: kString, env: "AETHER_CACHE_REDIS_URL",
		apply:   func(cfg *Config, v any) { cfg.Cache.RedisURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.RedisURL },
	},
	{
		key: "providers.default", typ: kString, env: "AETHER_PROVIDERS_DEFAULT",
		apply:   func(cfg *Config, v any) { cfg.Providers.Default = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.Default },
	},
	{
		key: "providers.call_timeout", typ: kString, env: "AETHER_PROVIDERS_CALL_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Providers.CallTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.CallTimeout },
	},
	{
		key: "providers.groq_api_key", typ: kString, env: "AETHER_GROQ_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Providers.GroqAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.GroqAPIKey },
	},
	{
		key: "providers.openai_api_key", typ: kString, env: "AETHER_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Providers.OpenAIAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.OpenAIAPIKey },
	},
	{
		key: "providers.anthropic_api_key", typ: kString, env: "AETHER_ANTHROPIC_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Providers.AnthropicAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.AnthropicAPIKey },
	},
	{
		key: "providers.openrouter_api_key", typ: kString, env: "AETHER_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Providers.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.OpenRouterAPIKey },
	},
	{
		key: "providers.ollama_base_url", typ: kString, env: "AETHER_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Providers.OllamaBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Providers.OllamaBaseURL },
	},
	{
		key: "worker.poll_interval", typ: kString, env: "AETHER_WORKER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Worker.PollInterval },
	},
	{
		key: "api.rate_limit", typ: kFloat, env: "AETHER_API_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.API.RateLimit = v.(float64) },
		extract: func(cfg Config) any { return cfg.API.RateLimit },
	},
	{
		key: "api.rate_burst", typ: kInt, env: "AETHER_API_RATE_BURST",
		apply:   func(cfg *Config, v any) { cfg.API.RateBurst = v.(int) },
		extract: func(cfg Config) any { return cfg.API.RateBurst },
	},
}

// parse converts raw text into the key's Go type.
func (s keySpec) parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(raw)
		return i, err
	case kFloat:
		f, err := strconv.ParseFloat(raw, 64)
		return f, err
	}
	return raw, nil
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// applyBackend loads persisted keys. A stored value that does not parse is
// an error: it was written by hand and the user should fix it.
func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok, err := b.Get(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", s.key, err)
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if s.env == "" || raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] ignoring %s=%q: %v\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
