// Package gateway is the dispatch core: it resolves routes, consults the
// cache, executes the chosen policy and hands back either response text or
// recovered JSON.
package gateway

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seekwell/llmgw"
	"github.com/seekwell/llmgw/breaker"
	"github.com/seekwell/llmgw/cache"
	"github.com/seekwell/llmgw/jsonrepair"
	"github.com/seekwell/llmgw/limit"
	"github.com/seekwell/llmgw/metrics"
	"github.com/seekwell/llmgw/route"
)

// Cached text is replayed through the caller's delta callback in chunks of
// this many runes, approximating live streaming granularity.
const replayChunkRunes = 64

// ChatParams are the inputs of one gateway call.
type ChatParams struct {
	// Task selects routing and policy, e.g. "skill_extraction".
	Task string

	Messages    []llmgw.Message
	Temperature float64
	MaxTokens   int

	// Model, when set, overrides all routing configuration with exactly one
	// route. "provider:model" or a bare model on the default provider.
	Model string

	// ExpectJson requests best-effort JSON recovery; an attempt only counts
	// as usable if its output parses.
	ExpectJson bool

	// Stream delivers content fragments through OnDelta as they arrive.
	// Streaming calls are always single-attempt and never cached.
	Stream  bool
	OnDelta func(delta string)

	// Cache enables the response cache for this call.
	Cache bool

	// Extra is merged into the provider request body; keys here win.
	Extra map[string]any

	// Timeout bounds each attempt. Zero uses the configured default.
	Timeout time.Duration
}

// Result is the outcome of a successful gateway call.
type Result struct {
	Text string

	// Json is set when ExpectJson was requested and recovery succeeded.
	Json any

	// Route that produced the result. Zero value for cache hits.
	Route  llmgw.RouteSpec
	Cached bool

	TokensIn  int
	TokensOut int
}

// Options carries the gateway's collaborators and tuning. Resolver, Policies
// and Logger are required; everything else degrades gracefully when unset.
type Options struct {
	Logger   *zap.SugaredLogger
	Resolver *route.Resolver
	Policies *route.PolicyResolver
	Breaker  *breaker.Breaker
	Limiter  *limit.Limiter
	Metrics  *metrics.Metrics

	CacheStore   cache.Store
	CacheEnabled bool
	CacheTtl     time.Duration

	// HedgeDelay before a hedged call starts its secondary attempt.
	HedgeDelay      time.Duration
	TaskHedgeDelays map[string]time.Duration

	// Attempts is the max tries per route, including the first.
	Attempts       int
	AttemptTimeout time.Duration

	// Calls slower than this are logged at warning level.
	SlowRequestThreshold time.Duration

	Clock clock.Clock
}

type Gateway struct {
	logger   *zap.SugaredLogger
	resolver *route.Resolver
	policies *route.PolicyResolver
	breaker  *breaker.Breaker
	limiter  *limit.Limiter
	metrics  *metrics.Metrics

	cacheStore   cache.Store
	cacheEnabled bool
	cacheTtl     time.Duration

	hedgeDelay      time.Duration
	taskHedgeDelays map[string]time.Duration

	attempts       int
	attemptTimeout time.Duration
	slowThreshold  time.Duration

	clock clock.Clock
}

func New(options Options) *Gateway {
	if options.Attempts < 1 {
		options.Attempts = 3
	}
	if options.AttemptTimeout <= 0 {
		options.AttemptTimeout = 60 * time.Second
	}
	if options.HedgeDelay <= 0 {
		options.HedgeDelay = 350 * time.Millisecond
	}
	if options.SlowRequestThreshold <= 0 {
		options.SlowRequestThreshold = 10 * time.Second
	}
	if options.Clock == nil {
		options.Clock = clock.New()
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop().Sugar()
	}
	if options.Breaker == nil {
		options.Breaker = breaker.New(breaker.Config{Enabled: false}, options.Logger)
	}
	if options.Limiter == nil {
		options.Limiter = limit.New(nil)
	}
	return &Gateway{
		logger:          options.Logger,
		resolver:        options.Resolver,
		policies:        options.Policies,
		breaker:         options.Breaker,
		limiter:         options.Limiter,
		metrics:         options.Metrics,
		cacheStore:      options.CacheStore,
		cacheEnabled:    options.CacheEnabled,
		cacheTtl:        options.CacheTtl,
		hedgeDelay:      options.HedgeDelay,
		taskHedgeDelays: options.TaskHedgeDelays,
		attempts:        options.Attempts,
		attemptTimeout:  options.AttemptTimeout,
		slowThreshold:   options.SlowRequestThreshold,
		clock:           options.Clock,
	}
}

// Chat dispatches one call. The caller sees either a usable Result or
// exactly one error carrying the last underlying failure's classification;
// intermediate failures are logged, never aggregated.
func (g *Gateway) Chat(ctx context.Context, params ChatParams) (*Result, error) {
	callId := uuid.NewString()
	start := g.clock.Now()

	routes, err := g.resolver.Resolve(params.Task, params.Model)
	if err != nil {
		g.metrics.RecordCall(params.Task, "", llmgw.Classify(err))
		return nil, err
	}
	policy := g.policies.Resolve(params.Task, routes, params.ExpectJson, params.Stream)

	request := &llmgw.ChatRequest{
		Messages:    params.Messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Extra:       params.Extra,
	}

	cacheKey := g.cacheKeyFor(routes[0].Spec, request, params)
	if cacheKey != "" {
		if result := g.cacheLookup(ctx, cacheKey, params); result != nil {
			g.metrics.RecordCall(params.Task, string(policy), "cache_hit")
			return result, nil
		}
	}

	g.logger.Infow("Dispatching call",
		"call_id", callId,
		"task", params.Task,
		"policy", policy,
		"routes", len(routes))

	var result *llmgw.AttemptResult
	switch policy {
	case llmgw.PolicySingle:
		result = g.attempt(ctx, routes[0], request, params, callId)
		if !result.Ok {
			err = result.Err
		}
	case llmgw.PolicyFallback:
		result, err = g.runFallback(ctx, routes, request, params, callId)
	case llmgw.PolicyHedge:
		result, err = g.runHedge(ctx, routes, request, params, callId)
	}

	elapsed := g.clock.Since(start)
	if err != nil {
		g.metrics.RecordCall(params.Task, string(policy), llmgw.Classify(err))
		g.logger.Warnw("Call failed",
			"call_id", callId,
			"task", params.Task,
			"policy", policy,
			"duration", elapsed,
			"error_type", llmgw.Classify(err),
			"error", err)
		return nil, err
	}

	if cacheKey != "" {
		g.cacheWrite(ctx, cacheKey, result.Text)
	}

	g.metrics.RecordCall(params.Task, string(policy), "success")
	if elapsed > g.slowThreshold {
		g.logger.Warnw("Slow call",
			"call_id", callId,
			"task", params.Task,
			"route", result.Route.Key(),
			"duration", elapsed)
	}

	return &Result{
		Text:      result.Text,
		Json:      result.ParsedJson,
		Route:     result.Route,
		TokensIn:  result.TokensIn,
		TokensOut: result.TokensOut,
	}, nil
}

// cacheKeyFor returns "" whenever this call does not participate in caching.
func (g *Gateway) cacheKeyFor(primary llmgw.RouteSpec, request *llmgw.ChatRequest, params ChatParams) string {
	if !params.Cache || !g.cacheEnabled || params.Stream || g.cacheStore == nil {
		return ""
	}
	key, err := cache.Key(primary, request)
	if err != nil {
		g.logger.Warnw("Failed to build cache key", "error", err)
		return ""
	}
	return key
}

func (g *Gateway) cacheLookup(ctx context.Context, key string, params ChatParams) *Result {
	value, err := g.cacheStore.Get(ctx, key)
	if err != nil {
		g.logger.Warnw("Cache lookup failed", "error", err)
		return nil
	}
	if value == nil {
		g.metrics.RecordCacheEvent("miss")
		return nil
	}
	g.metrics.RecordCacheEvent("hit")

	text := string(value)
	if params.OnDelta != nil {
		replayChunks(text, params.OnDelta)
	}

	result := &Result{Text: text, Cached: true}
	if params.ExpectJson {
		if parsed, ok := jsonrepair.Parse(text); ok {
			result.Json = parsed
		}
	}
	return result
}

func (g *Gateway) cacheWrite(ctx context.Context, key string, text string) {
	if err := g.cacheStore.Set(ctx, key, []byte(text), g.cacheTtl); err != nil {
		g.logger.Warnw("Cache write failed", "error", err)
		return
	}
	g.metrics.RecordCacheEvent("write")
}

func (g *Gateway) hedgeDelayFor(task string) time.Duration {
	if delay, exists := g.taskHedgeDelays[task]; exists && delay > 0 {
		return delay
	}
	return g.hedgeDelay
}

func replayChunks(text string, onDelta func(string)) {
	runes := []rune(text)
	for offset := 0; offset < len(runes); offset += replayChunkRunes {
		end := offset + replayChunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		onDelta(string(runes[offset:end]))
	}
}
