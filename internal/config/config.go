package config

import (
	"fmt"
	"slices"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Cache     CacheConfig
	Providers ProvidersConfig
	Worker    WorkerConfig
	API       APIConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// CacheConfig selects the response cache backend. An empty RedisURL keeps
// the cache in process memory.
type CacheConfig struct {
	RedisURL string
}

type ProvidersConfig struct {
	Default          string
	CallTimeout      string
	GroqAPIKey       string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	OpenRouterAPIKey string
	OllamaBaseURL    string
}

type WorkerConfig struct {
	PollInterval string
}

type APIConfig struct {
	RateLimit float64
	RateBurst int
}

// knownProviders lists provider ids in registry order.
var knownProviders = []string{"groq", "openai", "anthropic", "openrouter", "ollama"}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8001,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Providers: ProvidersConfig{
			Default:     "groq",
			CallTimeout: "30s",
		},
		Worker: WorkerConfig{
			PollInterval: "500ms",
		},
		API: APIConfig{
			RateLimit: 10,
			RateBurst: 20,
		},
	}
}

// Credential returns the configuration value that makes the provider
// available: an API key for hosted providers, the base URL for ollama.
func (c Config) Credential(provider string) string {
	switch provider {
	case "groq":
		return c.Providers.GroqAPIKey
	case "openai":
		return c.Providers.OpenAIAPIKey
	case "anthropic":
		return c.Providers.AnthropicAPIKey
	case "openrouter":
		return c.Providers.OpenRouterAPIKey
	case "ollama":
		return c.Providers.OllamaBaseURL
	}
	return ""
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.aether.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/aether/config.json
// and secrets come from environment variables or the secrets file.
//
// Environment variables (AETHER_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b Backend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Secrets still empty after env are looked up in the platform keychain.
	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		if key, err := kc.Get(secretService, s.account()); err == nil && key != "" {
			s.apply(&cfg, key)
		}
	}

	cfg.Providers.Default = strings.ToLower(strings.TrimSpace(cfg.Providers.Default))
	if !slices.Contains(knownProviders, cfg.Providers.Default) {
		return Config{}, fmt.Errorf("invalid config: providers.default %q is not one of %s",
			cfg.Providers.Default, strings.Join(knownProviders, ", "))
	}

	if cfg.Credential(cfg.Providers.Default) == "" {
		env := "AETHER_" + strings.ToUpper(cfg.Providers.Default) + "_API_KEY"
		if cfg.Providers.Default == "ollama" {
			env = "AETHER_OLLAMA_BASE_URL"
		}
		msg := fmt.Sprintf("missing required config: credentials for default provider %q. "+
			"Set it via environment variable %s", cfg.Providers.Default, env) + apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}

const secretService = "aether"

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
