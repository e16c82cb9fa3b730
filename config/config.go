package config

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/seekwell/llmgw"
	"github.com/seekwell/llmgw/utils/array"
	"github.com/seekwell/llmgw/utils/env"
)

// Config is the full gateway configuration. Durations are strings ("350ms",
// "30s") parsed where they are consumed, so a bad value fails at gateway
// construction rather than at load time.
type Config struct {
	// Provider used when a route token carries no "provider:" prefix.
	DefaultProvider string `yaml:"default_provider"`

	// Model used when a task has no route list or default model of its own.
	DefaultModel string `yaml:"default_model"`

	// Delay before a hedged call starts its secondary attempt. E.g., 350ms
	HedgeDelay string `yaml:"hedge_delay"`

	// Calls slower than this are logged at warning level. E.g., 10s
	SlowRequestThreshold string `yaml:"slow_request_threshold"`

	Http    HttpConfig    `yaml:"http"`
	Breaker BreakerConfig `yaml:"breaker"`
	Cache   CacheConfig   `yaml:"cache"`

	// Configuration for each provider, keyed by provider name.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	// Per-task routing and policy overrides, keyed by task name.
	Tasks map[string]*TaskConfig `yaml:"tasks"`
}

type HttpConfig struct {
	// Max tries per route within one attempt, including the first.
	Attempts int `yaml:"attempts"`

	// Max idle connections kept per upstream host.
	PoolSize int `yaml:"pool_size"`

	// Per-attempt timeout. E.g., 60s
	Timeout string `yaml:"timeout"`
}

type BreakerConfig struct {
	Enabled bool `yaml:"enabled"`

	// Consecutive retryable failures before a route's breaker opens.
	FailureThreshold int `yaml:"failure_threshold"`

	// How long an open breaker rejects attempts. E.g., 30s
	Cooldown string `yaml:"cooldown"`
}

type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// Entry lifetime. E.g., 24h
	Ttl string `yaml:"ttl"`

	// Byte budget for the in-process store. Ignored when a Valkey endpoint
	// is set.
	MaxBytes int64 `yaml:"max_bytes"`

	// Valkey (open-source version of Redis) endpoint for a shared cache.
	// E.g., localhost:6379. Empty selects the in-process store.
	ValkeyEndpoint string `yaml:"valkey_endpoint"`
}

type ProviderConfig struct {
	// Base URL of the provider's OpenAI-compatible API.
	// E.g., https://api.openai.com/v1
	BaseUrl string `yaml:"base_url"`

	// Environment variable holding the provider's API key.
	ApiKeyEnv string `yaml:"api_key_env"`

	// Max in-flight attempts against this provider. Zero disables the limit.
	MaxConcurrency int64 `yaml:"max_concurrency"`
}

type TaskConfig struct {
	// Route tokens tried in order, e.g. ["groq:llama-3.1-8b-instant", "gpt-4o-mini"].
	Routes []string `yaml:"routes"`

	// Dispatch policy override: single, fallback or hedge.
	Policy string `yaml:"policy"`

	// Hedge delay override for this task. E.g., 200ms
	HedgeDelay string `yaml:"hedge_delay"`

	// Model used when Routes is empty.
	DefaultModel string `yaml:"default_model"`
}

// Load reads configuration from the specified path, or from the URL in
// CONFIG_SOURCE when set.
func Load(path string, logger *zap.SugaredLogger) (*Config, error) {
	// Setting default values
	config := Config{
		DefaultProvider:      "openai",
		DefaultModel:         "gpt-4o-mini",
		HedgeDelay:           "350ms",
		SlowRequestThreshold: "10s",
		Http: HttpConfig{
			Attempts: 3,
			PoolSize: 64,
			Timeout:  "60s",
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			Cooldown:         "30s",
		},
		Cache: CacheConfig{
			Ttl:      "24h",
			MaxBytes: 64 * 1024 * 1024,
		},
	}

	// Checks if config is specified via environment variable.
	configSource := env.OptionalStringVariable("CONFIG_SOURCE", path)
	configToken := env.OptionalStringVariable("CONFIG_TOKEN", "")
	configData, err := func(configSource string, configToken string) ([]byte, error) {
		if strings.HasPrefix(configSource, "http://") || strings.HasPrefix(configSource, "https://") {
			logger.Infow("Fetching remote config", "url", configSource)
			return fetchRemoteConfig(configSource, configToken)
		}
		logger.Infow("Loading local config", "path", configSource)
		return os.ReadFile(configSource)
	}(configSource, configToken)

	if err != nil {
		return nil, fmt.Errorf("failed to get config data: %v", err)
	}

	// Overrides config with the YAML data.
	if err := yaml.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	// Overrides config with environment variables. Therefore, the values
	// from the environment variables precede the values from the YAML file.
	config.DefaultProvider = env.OptionalStringVariable("LLMGW_DEFAULT_PROVIDER", config.DefaultProvider)
	config.DefaultModel = env.OptionalStringVariable("LLMGW_DEFAULT_MODEL", config.DefaultModel)
	config.HedgeDelay = env.OptionalStringVariable("LLMGW_HEDGE_DELAY", config.HedgeDelay)
	config.Http.Attempts = env.OptionalIntVariable("LLMGW_HTTP_ATTEMPTS", config.Http.Attempts)
	config.Breaker.Enabled = env.OptionalBoolVariable("LLMGW_BREAKER_ENABLED", config.Breaker.Enabled)
	config.Cache.Enabled = env.OptionalBoolVariable("LLMGW_CACHE_ENABLED", config.Cache.Enabled)
	config.Cache.ValkeyEndpoint = env.OptionalStringVariable("VALKEY_ENDPOINT", config.Cache.ValkeyEndpoint)

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	validPolicies := []string{"", string(llmgw.PolicySingle), string(llmgw.PolicyFallback), string(llmgw.PolicyHedge)}
	for task, taskConfig := range c.Tasks {
		if !array.Contains(validPolicies, taskConfig.Policy) {
			return fmt.Errorf("task %q has unknown policy %q", task, taskConfig.Policy)
		}
	}
	if c.Http.Attempts < 1 {
		return fmt.Errorf("http.attempts must be at least 1, got %d", c.Http.Attempts)
	}
	return nil
}

func fetchRemoteConfig(url string, token string) ([]byte, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch config: HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
