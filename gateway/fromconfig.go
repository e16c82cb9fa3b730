package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	"github.com/seekwell/llmgw"
	"github.com/seekwell/llmgw/breaker"
	"github.com/seekwell/llmgw/cache"
	"github.com/seekwell/llmgw/config"
	"github.com/seekwell/llmgw/limit"
	"github.com/seekwell/llmgw/metrics"
	"github.com/seekwell/llmgw/provider"
	"github.com/seekwell/llmgw/provider/openaicompat"
	"github.com/seekwell/llmgw/route"
)

// FromConfig assembles a ready-to-use gateway from loaded configuration.
// The returned cleanup function releases the cache backend and must be
// called on shutdown.
func FromConfig(cfg *config.Config, keys provider.KeySource, m *metrics.Metrics, logger *zap.SugaredLogger) (*Gateway, func(), error) {
	hedgeDelay, err := time.ParseDuration(cfg.HedgeDelay)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid hedge_delay %q: %v", cfg.HedgeDelay, err)
	}
	slowThreshold, err := time.ParseDuration(cfg.SlowRequestThreshold)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid slow_request_threshold %q: %v", cfg.SlowRequestThreshold, err)
	}
	attemptTimeout, err := time.ParseDuration(cfg.Http.Timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid http.timeout %q: %v", cfg.Http.Timeout, err)
	}
	cooldown, err := time.ParseDuration(cfg.Breaker.Cooldown)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid breaker.cooldown %q: %v", cfg.Breaker.Cooldown, err)
	}
	cacheTtl, err := time.ParseDuration(cfg.Cache.Ttl)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid cache.ttl %q: %v", cfg.Cache.Ttl, err)
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Http.PoolSize,
			MaxIdleConnsPerHost: cfg.Http.PoolSize,
		},
	}

	registry := provider.NewRegistry()
	limits := make(map[string]int, len(cfg.Providers))
	for name, providerConfig := range cfg.Providers {
		apiKey, err := keys.ApiKey(name)
		if err != nil {
			// A provider without credentials is unusable; its routes will
			// drop during resolution instead of failing every attempt.
			logger.Warnw("Skipping provider without API key", "provider", name, "error", err)
			continue
		}
		endpoint, err := openaicompat.NewEndpoint(name, providerConfig.BaseUrl, apiKey, client, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("provider %q: %v", name, err)
		}
		registry.Register(endpoint)
		if providerConfig.MaxConcurrency > 0 {
			limits[name] = int(providerConfig.MaxConcurrency)
		}
	}

	overrides := make(map[string]route.TaskOverride, len(cfg.Tasks))
	taskHedgeDelays := make(map[string]time.Duration)
	for task, taskConfig := range cfg.Tasks {
		overrides[task] = route.TaskOverride{
			Routes:       taskConfig.Routes,
			Policy:       llmgw.Policy(taskConfig.Policy),
			DefaultModel: taskConfig.DefaultModel,
		}
		if taskConfig.HedgeDelay != "" {
			delay, err := time.ParseDuration(taskConfig.HedgeDelay)
			if err != nil {
				return nil, nil, fmt.Errorf("task %q: invalid hedge_delay %q: %v", task, taskConfig.HedgeDelay, err)
			}
			taskHedgeDelays[task] = delay
		}
	}

	cleanup := func() {}
	var store cache.Store
	if cfg.Cache.Enabled {
		if cfg.Cache.ValkeyEndpoint != "" {
			valkeyClient, err := valkey.NewClient(valkey.ClientOption{
				InitAddress: []string{cfg.Cache.ValkeyEndpoint},
			})
			if err != nil {
				return nil, nil, fmt.Errorf("failed to connect to valkey: %v", err)
			}
			store = cache.NewValkeyStore(valkeyClient)
			cleanup = valkeyClient.Close
		} else {
			memoryStore, stop := cache.NewMemoryStore(cfg.Cache.MaxBytes)
			store = memoryStore
			cleanup = stop
		}
	}

	gateway := New(Options{
		Logger:   logger,
		Resolver: route.NewResolver(registry, cfg.DefaultProvider, cfg.DefaultModel, overrides, logger),
		Policies: route.NewPolicyResolver(overrides),
		Breaker: breaker.New(breaker.Config{
			Enabled:          cfg.Breaker.Enabled,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Cooldown:         cooldown,
		}, logger),
		Limiter:              limit.New(limits),
		Metrics:              m,
		CacheStore:           store,
		CacheEnabled:         cfg.Cache.Enabled,
		CacheTtl:             cacheTtl,
		HedgeDelay:           hedgeDelay,
		TaskHedgeDelays:      taskHedgeDelays,
		Attempts:             cfg.Http.Attempts,
		AttemptTimeout:       attemptTimeout,
		SlowRequestThreshold: slowThreshold,
	})
	return gateway, cleanup, nil
}
