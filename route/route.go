// Package route turns (task, optional explicit model) into an ordered route
// list and picks the dispatch policy for it.
package route

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/seekwell/llmgw"
	"github.com/seekwell/llmgw/provider"
)

// Route pairs a RouteSpec with the endpoint that serves it, resolved once so
// the dispatcher never re-parses provider prefixes per attempt.
type Route struct {
	Spec     llmgw.RouteSpec
	Endpoint provider.Endpoint
}

// TaskOverride is the per-task routing configuration.
type TaskOverride struct {
	// Routes lists route tokens ("provider:model" or bare model) tried in
	// order. Takes precedence over the built-in route table.
	Routes []string

	// Policy, when set, is honored verbatim for multi-route non-streaming
	// calls.
	Policy llmgw.Policy

	// DefaultModel is used when neither Routes nor the built-in table has an
	// entry for the task.
	DefaultModel string
}

// Built-in multi-route table for tasks where a provider hiccup is directly
// user-visible. Configuration overrides take precedence.
var latencySensitiveRoutes = map[string][]string{
	"profile_summary":  {"groq:llama-3.1-8b-instant", "openai:gpt-4o-mini"},
	"skill_extraction": {"openai:gpt-4o-mini", "groq:llama-3.3-70b-versatile"},
	"salary_estimate":  {"openai:gpt-4o-mini", "groq:llama-3.1-8b-instant"},
}

// Tasks hedged by default. These produce strict JSON, so a malformed result
// is cheap to detect and discard in favor of the racing attempt.
var hedgedTasks = map[string]bool{
	"skill_extraction": true,
	"salary_estimate":  true,
}

type Resolver struct {
	registry        *provider.Registry
	defaultProvider string
	defaultModel    string
	overrides       map[string]TaskOverride
	logger          *zap.SugaredLogger
}

func NewResolver(registry *provider.Registry, defaultProvider string, defaultModel string, overrides map[string]TaskOverride, logger *zap.SugaredLogger) *Resolver {
	return &Resolver{
		registry:        registry,
		defaultProvider: defaultProvider,
		defaultModel:    defaultModel,
		overrides:       overrides,
		logger:          logger,
	}
}

// Resolve returns the ordered, de-duplicated route list for a call. The
// first non-empty source wins: explicit model, per-task override, built-in
// table, per-task default model, global default. Tokens naming an unknown
// provider are dropped rather than raised, so a partially bad configuration
// degrades to fewer candidates. An empty final list is a configuration
// error; no attempt is made.
func (r *Resolver) Resolve(task string, explicitModel string) ([]Route, error) {
	tokens := r.candidateTokens(task, explicitModel)

	seen := make(map[string]bool, len(tokens))
	routes := make([]Route, 0, len(tokens))
	for _, token := range tokens {
		spec, ok := r.parseToken(token)
		if !ok {
			continue
		}
		endpoint, exists := r.registry.Lookup(spec.Provider)
		if !exists {
			if r.logger != nil {
				r.logger.Warnw("dropping route with unknown provider",
					"task", task, "route", spec.Key())
			}
			continue
		}
		if seen[spec.Key()] {
			continue
		}
		seen[spec.Key()] = true
		routes = append(routes, Route{Spec: spec, Endpoint: endpoint})
	}

	if len(routes) == 0 {
		return nil, llmgw.ConfigurationError{
			Err: fmt.Errorf("no usable route for task %q (model %q)", task, explicitModel),
		}
	}
	return routes, nil
}

func (r *Resolver) candidateTokens(task string, explicitModel string) []string {
	if explicitModel != "" {
		return []string{explicitModel}
	}
	if override, exists := r.overrides[task]; exists && len(override.Routes) > 0 {
		return override.Routes
	}
	if builtin, exists := latencySensitiveRoutes[task]; exists {
		return builtin
	}
	if override, exists := r.overrides[task]; exists && override.DefaultModel != "" {
		return []string{override.DefaultModel}
	}
	return []string{r.defaultModel}
}

func (r *Resolver) parseToken(token string) (llmgw.RouteSpec, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return llmgw.RouteSpec{}, false
	}
	if providerName, model, found := strings.Cut(token, ":"); found {
		if providerName == "" || model == "" {
			return llmgw.RouteSpec{}, false
		}
		return llmgw.RouteSpec{Provider: providerName, Model: model}, true
	}
	// Bare model implies the default provider.
	return llmgw.RouteSpec{Provider: r.defaultProvider, Model: token}, true
}

type PolicyResolver struct {
	overrides map[string]TaskOverride
}

func NewPolicyResolver(overrides map[string]TaskOverride) *PolicyResolver {
	return &PolicyResolver{overrides: overrides}
}

// Resolve picks the dispatch policy. Streaming and single-route calls are
// always single-attempt; a per-task override is honored verbatim; hedged
// tasks and strict-JSON calls race providers; everything else falls back
// sequentially.
func (p *PolicyResolver) Resolve(task string, routes []Route, expectJson bool, streaming bool) llmgw.Policy {
	if streaming || len(routes) <= 1 {
		return llmgw.PolicySingle
	}
	if override, exists := p.overrides[task]; exists && override.Policy != "" {
		return override.Policy
	}
	if hedgedTasks[task] {
		return llmgw.PolicyHedge
	}
	if expectJson {
		return llmgw.PolicyHedge
	}
	return llmgw.PolicyFallback
}
