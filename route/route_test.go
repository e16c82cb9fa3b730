package route

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seekwell/llmgw"
	"github.com/seekwell/llmgw/provider"
)

type stubEndpoint struct{ name string }

func (e *stubEndpoint) Name() string { return e.name }

func (e *stubEndpoint) Complete(ctx context.Context, model string, request *llmgw.ChatRequest) (*provider.Response, error) {
	return &provider.Response{Text: "ok"}, nil
}

func (e *stubEndpoint) CompleteStream(ctx context.Context, model string, request *llmgw.ChatRequest, onDelta provider.DeltaFunc) (*provider.Response, error) {
	return &provider.Response{Text: "ok"}, nil
}

func testRegistry() *provider.Registry {
	registry := provider.NewRegistry()
	registry.Register(&stubEndpoint{name: "openai"})
	registry.Register(&stubEndpoint{name: "groq"})
	return registry
}

func keys(routes []Route) []string {
	result := make([]string, len(routes))
	for i, r := range routes {
		result[i] = r.Spec.Key()
	}
	return result
}

func TestResolver(t *testing.T) {
	logger := zap.NewNop().Sugar()

	t.Run("explicit model yields exactly one route", func(t *testing.T) {
		resolver := NewResolver(testRegistry(), "openai", "gpt-4o-mini", map[string]TaskOverride{
			"profile_summary": {Routes: []string{"groq:llama-3.1-8b-instant", "openai:gpt-4o"}},
		}, logger)

		routes, err := resolver.Resolve("profile_summary", "groq:llama-3.3-70b-versatile")
		require.NoError(t, err)
		assert.Equal(t, []string{"groq:llama-3.3-70b-versatile"}, keys(routes))
	})

	t.Run("bare explicit model uses the default provider", func(t *testing.T) {
		resolver := NewResolver(testRegistry(), "openai", "gpt-4o-mini", nil, logger)

		routes, err := resolver.Resolve("report_section", "gpt-4o")
		require.NoError(t, err)
		assert.Equal(t, []string{"openai:gpt-4o"}, keys(routes))
		assert.Equal(t, "openai", routes[0].Endpoint.Name())
	})

	t.Run("task override beats the built-in table", func(t *testing.T) {
		resolver := NewResolver(testRegistry(), "openai", "gpt-4o-mini", map[string]TaskOverride{
			"profile_summary": {Routes: []string{"openai:gpt-4o", "groq:llama-3.1-8b-instant"}},
		}, logger)

		routes, err := resolver.Resolve("profile_summary", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"openai:gpt-4o", "groq:llama-3.1-8b-instant"}, keys(routes))
	})

	t.Run("built-in table serves latency-sensitive tasks", func(t *testing.T) {
		resolver := NewResolver(testRegistry(), "openai", "gpt-4o-mini", nil, logger)

		routes, err := resolver.Resolve("profile_summary", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"groq:llama-3.1-8b-instant", "openai:gpt-4o-mini"}, keys(routes))
	})

	t.Run("task default model when no route list applies", func(t *testing.T) {
		resolver := NewResolver(testRegistry(), "openai", "gpt-4o-mini", map[string]TaskOverride{
			"outreach_draft": {DefaultModel: "gpt-4o"},
		}, logger)

		routes, err := resolver.Resolve("outreach_draft", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"openai:gpt-4o"}, keys(routes))
	})

	t.Run("global default as the last resort", func(t *testing.T) {
		resolver := NewResolver(testRegistry(), "openai", "gpt-4o-mini", nil, logger)

		routes, err := resolver.Resolve("unknown_task", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"openai:gpt-4o-mini"}, keys(routes))
	})

	t.Run("unknown providers are dropped not raised", func(t *testing.T) {
		resolver := NewResolver(testRegistry(), "openai", "gpt-4o-mini", map[string]TaskOverride{
			"report_section": {Routes: []string{"mistral:mistral-large", "openai:gpt-4o"}},
		}, logger)

		routes, err := resolver.Resolve("report_section", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"openai:gpt-4o"}, keys(routes))
	})

	t.Run("malformed tokens are dropped", func(t *testing.T) {
		resolver := NewResolver(testRegistry(), "openai", "gpt-4o-mini", map[string]TaskOverride{
			"report_section": {Routes: []string{":gpt-4o", "openai:", "  ", "groq:llama-3.1-8b-instant"}},
		}, logger)

		routes, err := resolver.Resolve("report_section", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"groq:llama-3.1-8b-instant"}, keys(routes))
	})

	t.Run("duplicates are removed preserving order", func(t *testing.T) {
		resolver := NewResolver(testRegistry(), "openai", "gpt-4o-mini", map[string]TaskOverride{
			"report_section": {Routes: []string{"openai:gpt-4o", "gpt-4o", "groq:llama-3.1-8b-instant", "openai:gpt-4o"}},
		}, logger)

		routes, err := resolver.Resolve("report_section", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"openai:gpt-4o", "groq:llama-3.1-8b-instant"}, keys(routes))
	})

	t.Run("all routes malformed is a configuration error", func(t *testing.T) {
		resolver := NewResolver(testRegistry(), "openai", "gpt-4o-mini", map[string]TaskOverride{
			"report_section": {Routes: []string{"mistral:large", "cohere:command-r"}},
		}, logger)

		_, err := resolver.Resolve("report_section", "")
		require.Error(t, err)

		var configErr llmgw.ConfigurationError
		assert.True(t, errors.As(err, &configErr))
		assert.Equal(t, llmgw.ErrorTypeConfiguration, llmgw.Classify(err))
	})

	t.Run("explicit model with unknown provider is a configuration error", func(t *testing.T) {
		resolver := NewResolver(testRegistry(), "openai", "gpt-4o-mini", nil, logger)

		_, err := resolver.Resolve("report_section", "cohere:command-r")
		require.Error(t, err)

		var configErr llmgw.ConfigurationError
		assert.True(t, errors.As(err, &configErr))
	})
}

func TestPolicyResolver(t *testing.T) {
	registry := testRegistry()
	resolver := NewResolver(registry, "openai", "gpt-4o-mini", nil, zap.NewNop().Sugar())

	multiRoute, err := resolver.Resolve("profile_summary", "")
	require.NoError(t, err)
	require.Len(t, multiRoute, 2)

	singleRoute, err := resolver.Resolve("unknown_task", "")
	require.NoError(t, err)
	require.Len(t, singleRoute, 1)

	t.Run("streaming always single", func(t *testing.T) {
		policies := NewPolicyResolver(nil)
		assert.Equal(t, llmgw.PolicySingle, policies.Resolve("skill_extraction", multiRoute, true, true))
	})

	t.Run("single route always single", func(t *testing.T) {
		policies := NewPolicyResolver(nil)
		assert.Equal(t, llmgw.PolicySingle, policies.Resolve("skill_extraction", singleRoute, true, false))
	})

	t.Run("per-task override is honored verbatim", func(t *testing.T) {
		policies := NewPolicyResolver(map[string]TaskOverride{
			"skill_extraction": {Policy: llmgw.PolicyFallback},
		})
		assert.Equal(t, llmgw.PolicyFallback, policies.Resolve("skill_extraction", multiRoute, true, false))
	})

	t.Run("hedged tasks hedge", func(t *testing.T) {
		policies := NewPolicyResolver(nil)
		assert.Equal(t, llmgw.PolicyHedge, policies.Resolve("salary_estimate", multiRoute, false, false))
	})

	t.Run("strict JSON hedges", func(t *testing.T) {
		policies := NewPolicyResolver(nil)
		assert.Equal(t, llmgw.PolicyHedge, policies.Resolve("report_section", multiRoute, true, false))
	})

	t.Run("free text falls back", func(t *testing.T) {
		policies := NewPolicyResolver(nil)
		assert.Equal(t, llmgw.PolicyFallback, policies.Resolve("report_section", multiRoute, false, false))
	})
}
